package model

// TagKind is the hierarchy a resource tag belongs to.
type TagKind string

const (
	TagRegion  TagKind = "region"
	TagProject TagKind = "project"
	TagScheme  TagKind = "scheme"
)

// ResourceTag identifies one scoping attribute of a resource instance.
type ResourceTag struct {
	Kind TagKind `json:"kind" validate:"required,max=40"`
	ID   string  `json:"id" validate:"required,max=100"`
}

func Region(id string) ResourceTag  { return ResourceTag{Kind: TagRegion, ID: id} }
func Project(id string) ResourceTag { return ResourceTag{Kind: TagProject, ID: id} }
func Scheme(id string) ResourceTag  { return ResourceTag{Kind: TagScheme, ID: id} }
