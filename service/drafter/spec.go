package drafter

import (
	"github.com/vaultflow/vaultflow/model/task"
)

// ContentSpec describes the shape of one content type. The per-platform
// drafting variants collapse into a single handler parameterized by these
// descriptors instead of bespoke logic per platform.
type ContentSpec struct {
	Type         task.Type
	Hook         bool     // open with an attention hook
	CallToAction bool     // close with a CTA line
	MaxHashtags  int      // 0 disables hashtags
	Sections     []string // ordered body sections
}

// specs holds the built-in content type descriptors.
var specs = map[task.Type]ContentSpec{
	task.TypeEmail: {
		Type:     task.TypeEmail,
		Sections: []string{"subject", "greeting", "body", "signoff"},
	},
	task.TypeLinkedInPost: {
		Type:         task.TypeLinkedInPost,
		Hook:         true,
		CallToAction: true,
		MaxHashtags:  5,
		Sections:     []string{"hook", "body", "cta", "hashtags"},
	},
	task.TypeInstagramPost: {
		Type:         task.TypeInstagramPost,
		Hook:         true,
		CallToAction: true,
		MaxHashtags:  15,
		Sections:     []string{"hook", "caption", "cta", "hashtags"},
	},
}

// SpecFor returns the content descriptor for a task type.
func SpecFor(t task.Type) (ContentSpec, bool) {
	spec, ok := specs[t]
	return spec, ok
}
