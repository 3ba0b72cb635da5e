package domain

// Post represents a stored photo post.
type Post struct {
	// ID is assigned by the store on creation and never reused.
	ID int64

	// Photos are the photo references in the order they were received. Each
	// reference is a file name inside the photos directory.
	Photos []string

	// Caption is the post text. It may be empty.
	Caption string
}

// Event types published on post changes.
const (
	EventPostCreated = "post.created"
	EventPostDeleted = "post.deleted"
)

// Event describes a change to the post table. Post is set for created events,
// PostID for every event.
type Event struct {
	Type   string
	PostID int64
	Post   *Post
}
