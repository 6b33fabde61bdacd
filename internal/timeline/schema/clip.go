package schema

// ClipKind is the media type of a clip.
type ClipKind string

const (
	ClipVideo ClipKind = "video"
	ClipAudio ClipKind = "audio"
	ClipText  ClipKind = "text"
)

// Valid reports whether k is one of the recognized clip kinds.
func (k ClipKind) Valid() bool {
	switch k {
	case ClipVideo, ClipAudio, ClipText:
		return true
	default:
		return false
	}
}

// Clip is one media segment placed on a scene's local timeline.
type Clip struct {
	ID         string   `json:"id" yaml:"id"`
	StartTime  float64  `json:"startTime" yaml:"startTime"`
	Duration   float64  `json:"duration" yaml:"duration"`
	MediaStart float64  `json:"mediaStart" yaml:"mediaStart"`
	MediaEnd   float64  `json:"mediaEnd" yaml:"mediaEnd"`
	Kind       ClipKind `json:"type" yaml:"type"`
	Selected   bool     `json:"selected" yaml:"selected"`

	OriginalDuration *float64 `json:"originalDuration,omitempty" yaml:"originalDuration,omitempty"`
	SourceSceneID    string   `json:"sourceSceneId,omitempty" yaml:"sourceSceneId,omitempty"`
}

// End returns the clip's end position on the scene timeline.
func (c Clip) End() float64 {
	return c.StartTime + c.Duration
}

// TextOverlay is a caption rendered over a scene.
type TextOverlay struct {
	ID        string  `json:"id" yaml:"id"`
	Text      string  `json:"text" yaml:"text"`
	StartTime float64 `json:"startTime" yaml:"startTime"`
	Duration  float64 `json:"duration" yaml:"duration"`
	X         float64 `json:"x,omitempty" yaml:"x,omitempty"`
	Y         float64 `json:"y,omitempty" yaml:"y,omitempty"`
	FontSize  float64 `json:"fontSize,omitempty" yaml:"fontSize,omitempty"`
	Color     string  `json:"color,omitempty" yaml:"color,omitempty"`
}

// Edits holds optional overrides applied on top of the source media.
// A nil field means the value is unmodified.
type Edits struct {
	TrimStart *float64 `json:"trimStart,omitempty" yaml:"trimStart,omitempty"`
	TrimEnd   *float64 `json:"trimEnd,omitempty" yaml:"trimEnd,omitempty"`
	Volume    *float64 `json:"volume,omitempty" yaml:"volume,omitempty"`

	Brightness *float64 `json:"brightness,omitempty" yaml:"brightness,omitempty"`
	Contrast   *float64 `json:"contrast,omitempty" yaml:"contrast,omitempty"`
	Saturation *float64 `json:"saturation,omitempty" yaml:"saturation,omitempty"`

	TextOverlays []TextOverlay `json:"textOverlays,omitempty" yaml:"textOverlays,omitempty"`

	FadeIn  *float64 `json:"fadeIn,omitempty" yaml:"fadeIn,omitempty"`
	FadeOut *float64 `json:"fadeOut,omitempty" yaml:"fadeOut,omitempty"`

	Clips    []Clip   `json:"clips,omitempty" yaml:"clips,omitempty"`
	Playhead *float64 `json:"playhead,omitempty" yaml:"playhead,omitempty"`
}

// Float returns a pointer to v, for populating optional edit fields.
func Float(v float64) *float64 {
	return &v
}
