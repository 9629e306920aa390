package e2e

import (
	"bytes"
	"chat-delivery/auth"
	"chat-delivery/domain"
	"chat-delivery/infrastructure/ws"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const frameTimeout = 5 * time.Second

// BaseSuite drives a running server through its public surfaces: HTTP,
// WebSocket and the gRPC admin endpoint.
type BaseSuite struct {
	suite.Suite
	Config Config
	tokens *auth.TokenService
	client *http.Client
}

// SetupSuite loads the environment configuration, the suite is skipped when
// no server address is given.
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.BaseURL == "" {
		s.T().Skip("E2E_BASE_URL is not set")
	}
	s.tokens = auth.NewTokenService(s.Config.JWTSecret)
	s.client = &http.Client{Timeout: 10 * time.Second}
}

// Step prints a header so that the steps stand out in the test output.
func (s *BaseSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

func (s *BaseSuite) Token(userID domain.UserID) string {
	token, err := s.tokens.GenerateToken(userID, nil, time.Hour)
	s.Require().NoError(err)
	return token
}

// Call sends an authenticated API request and decodes the answer into out
// when out is not nil. It returns the status code.
func (s *BaseSuite) Call(userID domain.UserID, method, path string, body, out any) int {
	return s.do(method, path, body, out, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+s.Token(userID))
	})
}

// CallInternal sends a request the way the CRUD layer does.
func (s *BaseSuite) CallInternal(method, path string, body, out any) int {
	return s.do(method, path, body, out, func(r *http.Request) {
		r.Header.Set("X-Internal-Key", s.Config.InternalAPIKey)
	})
}

func (s *BaseSuite) do(method, path string, body, out any, authenticate func(r *http.Request)) int {
	var reader io.Reader
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	request, err := http.NewRequest(method, s.Config.BaseURL+path, reader)
	s.Require().NoError(err)
	request.Header.Set("Content-Type", "application/json")
	authenticate(request)

	start := time.Now()
	response, err := s.client.Do(request)
	s.Require().NoError(err, "Failed to reach "+s.Config.BaseURL)
	defer response.Body.Close()
	answer, err := io.ReadAll(response.Body)
	s.Require().NoError(err)

	logBuilder := strings.Builder{}
	fmt.Fprintf(&logBuilder, "HTTP %s %s [%d] in %v", method, path, response.StatusCode, time.Since(start))
	if s.Config.DebugJSON {
		fmt.Fprintf(&logBuilder, "\nREQUEST:\n%s\nRESPONSE:\n%s", raw, answer)
	}
	s.T().Log(logBuilder.String())

	if out != nil && len(answer) > 0 {
		s.Require().NoError(json.Unmarshal(answer, out), string(answer))
	}
	return response.StatusCode
}

// Dial opens an announced socket for userID and consumes the announce ack.
func (s *BaseSuite) Dial(userID domain.UserID) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(s.Config.BaseURL, "http") + "/ws?token=" + s.Token(userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	s.Require().NoError(err)
	s.Require().Equal("ack", s.Read(conn).Event)
	return conn
}

func (s *BaseSuite) Send(conn *websocket.Conn, eventName, ref string, data any) {
	raw, err := json.Marshal(data)
	s.Require().NoError(err)
	s.Require().NoError(conn.WriteJSON(ws.Frame{Event: eventName, Ref: ref, Data: raw}))
}

func (s *BaseSuite) Read(conn *websocket.Conn) ws.Frame {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(frameTimeout)))
	var frame ws.Frame
	s.Require().NoError(conn.ReadJSON(&frame))
	if s.Config.DebugJSON {
		s.T().Logf("WS <- %s %s", frame.Event, frame.Data)
	}
	return frame
}

// Expect reads frames until one named eventName arrives and decodes its data.
// Typing indicators and other interleaved pushes are skipped.
func (s *BaseSuite) Expect(conn *websocket.Conn, eventName string, out any) ws.Frame {
	for {
		frame := s.Read(conn)
		s.Require().NotEqual("error", frame.Event, string(frame.Data))
		if frame.Event != eventName {
			continue
		}
		if out != nil {
			s.Require().NoError(json.Unmarshal(frame.Data, out))
		}
		return frame
	}
}

// GrpcConn initializes a gRPC connection that logs every call.
func (s *BaseSuite) GrpcConn(name string, addr string) *grpc.ClientConn {
	s.Step(name)
	marshaler := protojson.MarshalOptions{
		UseProtoNames:   true,
		Multiline:       true,
		EmitUnpopulated: true,
	}

	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
			start := time.Now()
			err := invoker(ctx, method, req, reply, cc, opts...)

			logBuilder := strings.Builder{}
			fmt.Fprintf(&logBuilder, "GRPC %s [%s] in %v", method, status.Code(err), time.Since(start))
			if s.Config.DebugJSON {
				fmt.Fprintln(&logBuilder, "\nREQUEST:")
				fmt.Fprintln(&logBuilder, marshaler.Format(req.(proto.Message)))
				if err == nil {
					fmt.Fprintln(&logBuilder, "RESPONSE:")
					fmt.Fprintln(&logBuilder, marshaler.Format(reply.(proto.Message)))
				}
			}
			s.T().Log(logBuilder.String())
			return err
		}),
	)
	s.Require().NoError(err, "Failed to connect to gRPC server at "+addr)
	return conn
}

// WithAdmin provides a health client of the admin endpoint within a step.
func (s *BaseSuite) WithAdmin(name string, fn func(ctx context.Context, client healthpb.HealthClient)) {
	if s.Config.AdminAddr == "" {
		s.T().Skip("E2E_ADMIN_ADDR is not set")
	}
	conn := s.GrpcConn(name, s.Config.AdminAddr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fn(ctx, healthpb.NewHealthClient(conn))
}
