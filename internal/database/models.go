package database

// Round status values.
const (
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// Round is one generation-to-publish cycle, successful or not.
type Round struct {
	ID          int64
	BatchID     string
	Index       int
	Status      string
	Prompt      string
	Title       string
	Description string
	Tags        []string
	Date        string
	Name        string
	ArticlePath string
	ImagePath   string
	CoverURL    string
	SourceURL   string
	BaseRef     string
	Ref         string
	Error       string
	Document    string
	Cover       []byte
	CreatedAt   string
}

// Published reports whether the round reached the publish target.
func (r *Round) Published() bool {
	return r.Status == StatusPublished
}

// Stats summarizes the round history.
type Stats struct {
	TotalRounds int
	Published   int
	Failed      int
	UsedTopics  int
	LastRef     string
}
