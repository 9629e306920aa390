package domain

const (
	DefaultMessageLimit      = 50
	DefaultNotificationLimit = 20
	DefaultConversationLimit = 20
	MaxPageLimit             = 100
)

// Page is a 1-based offset page.
type Page struct {
	Number int
	Limit  int
}

// NewPage clamps user input, falling back to defaultLimit.
func NewPage(number, limit, defaultLimit int) Page {
	if number < 1 {
		number = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return Page{Number: number, Limit: limit}
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

// Window returns the [start, end) bounds of the page inside total items.
func (p Page) Window(total int) (int, int) {
	start := min(p.Offset(), total)
	end := min(start+p.Limit, total)
	return start, end
}

type Pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	Total       int  `json:"total"`
	HasNext     bool `json:"hasNext"`
	HasPrev     bool `json:"hasPrev"`
}

func NewPagination(p Page, total int) Pagination {
	totalPages := 0
	if p.Limit > 0 {
		totalPages = (total + p.Limit - 1) / p.Limit
	}
	return Pagination{
		CurrentPage: p.Number,
		TotalPages:  totalPages,
		Total:       total,
		HasNext:     p.Number*p.Limit < total,
		HasPrev:     p.Number > 1,
	}
}
