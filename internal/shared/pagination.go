package shared

// Page describes a requested window over a listing.
type Page struct {
	Number int
	Size   int
}

// NormalizePage applies defaults and bounds.
func NormalizePage(number, size, maxSize int) Page {
	if number <= 0 {
		number = 1
	}
	if size <= 0 {
		size = 20
	}
	if maxSize > 0 && size > maxSize {
		size = maxSize
	}
	return Page{Number: number, Size: size}
}

// Offset returns the row offset for SQL queries.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Paging carries response metadata for a paginated listing. HasNext is
// derived by probing one row past the requested window.
type Paging struct {
	Page    int  `json:"page"`
	Size    int  `json:"pageSize"`
	HasNext bool `json:"hasNext"`
}
