package harness

import (
	"encoding/json"
	"fmt"

	ports "github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/ports"
	"github.com/ZanzyTHEbar/pinloom/pinloom/generation/harness/tools"
)

const (
	maxErrorText     = 300
	generatedMessage = "The image was generated successfully and is already displayed to the user."
)

// ToolResult is the dual view of one invocation. Full is what the tool
// returned; Cleaned is the small, payload-free view the model gets back.
type ToolResult struct {
	ID      string
	Name    string
	Kind    ports.ToolKind
	Args    json.RawMessage
	Full    any
	Cleaned any
	Err     error
}

// Failed reports whether the invocation produced an error instead of output.
func (r ToolResult) Failed() bool { return r.Err != nil }

// CleanedPhoto is the per-photo cleaned view of a search result.
type CleanedPhoto struct {
	ID           int64  `json:"id"`
	Alt          string `json:"alt"`
	URL          string `json:"url"`
	Photographer string `json:"photographer"`
}

// CleanedSearch is the cleaned view of the search tool.
type CleanedSearch struct {
	Photos []CleanedPhoto `json:"photos"`
}

// Acknowledgement is the cleaned view of generation tools and of failures.
type Acknowledgement struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// GeneratedImage pairs a generated image with the prompt that produced it.
type GeneratedImage struct {
	URL    string `json:"url"`
	Prompt string `json:"prompt"`
}

// Artifacts is the full-fidelity bundle returned to the UI.
type Artifacts struct {
	PexelsPhotos    []tools.Photo    `json:"pexelsPhotos"`
	GeneratedImages []GeneratedImage `json:"generatedImages"`
}

// Empty reports whether no tool produced anything displayable.
func (a *Artifacts) Empty() bool {
	return a == nil || (len(a.PexelsPhotos) == 0 && len(a.GeneratedImages) == 0)
}

type kindReconciler struct {
	clean   func(full any) (any, error)
	collect func(a *Artifacts, r ToolResult)
}

var reconcilers = map[ports.ToolKind]kindReconciler{
	ports.KindImageSearch: {
		clean:   cleanSearch,
		collect: collectPhotos,
	},
	ports.KindTextToImage: {
		clean:   cleanGenerated,
		collect: collectGenerated,
	},
	ports.KindImageToImage: {
		clean:   cleanGenerated,
		collect: collectGenerated,
	},
}

// Clean fills the cleaned view of a result. Failures and unexpected output
// shapes collapse into an error acknowledgement.
func Clean(r *ToolResult) {
	if r.Err == nil {
		rec, ok := reconcilers[r.Kind]
		if !ok {
			r.Err = fmt.Errorf("%w: %s", ErrUnknownTool, r.Name)
		} else if cleaned, err := rec.clean(r.Full); err != nil {
			r.Err = err
		} else {
			r.Cleaned = cleaned
			return
		}
	}

	r.Full = nil
	r.Cleaned = Acknowledgement{Status: "error", Error: errorText(r.Err)}
}

// CleanedJSON serializes the cleaned view for a tool message.
func CleanedJSON(r ToolResult) string {
	b, err := json.Marshal(r.Cleaned)
	if err != nil {
		return `{"status":"error","error":"result could not be encoded"}`
	}
	return string(b)
}

// Bundle partitions results into typed lists in invocation order. Lists are
// never merged or sorted; failed results are left out.
func Bundle(results []ToolResult) *Artifacts {
	a := &Artifacts{
		PexelsPhotos:    []tools.Photo{},
		GeneratedImages: []GeneratedImage{},
	}
	for _, r := range results {
		if r.Failed() {
			continue
		}
		if rec, ok := reconcilers[r.Kind]; ok {
			rec.collect(a, r)
		}
	}
	return a
}

func cleanSearch(full any) (any, error) {
	resp, ok := full.(*tools.PexelsResponse)
	if !ok || resp == nil {
		return nil, fmt.Errorf("unexpected search result %T", full)
	}

	cleaned := CleanedSearch{Photos: make([]CleanedPhoto, 0, len(resp.Photos))}
	for _, p := range resp.Photos {
		alt := ""
		if p.Alt != nil {
			alt = *p.Alt
		}
		cleaned.Photos = append(cleaned.Photos, CleanedPhoto{
			ID:           p.ID,
			Alt:          alt,
			URL:          p.URL,
			Photographer: p.Photographer,
		})
	}
	return cleaned, nil
}

func cleanGenerated(full any) (any, error) {
	img, ok := full.(*tools.GeneratedImage)
	if !ok || img == nil {
		return nil, fmt.Errorf("unexpected generation result %T", full)
	}
	if img.Format == "" {
		return nil, tools.ErrNoImageReturned
	}
	// The payload never reaches the model, only the acknowledgement does.
	return Acknowledgement{Status: "success", Message: generatedMessage}, nil
}

func collectPhotos(a *Artifacts, r ToolResult) {
	if resp, ok := r.Full.(*tools.PexelsResponse); ok && resp != nil {
		a.PexelsPhotos = append(a.PexelsPhotos, resp.Photos...)
	}
}

func collectGenerated(a *Artifacts, r ToolResult) {
	if img, ok := r.Full.(*tools.GeneratedImage); ok && img != nil && img.Format != "" {
		a.GeneratedImages = append(a.GeneratedImages, GeneratedImage{
			URL:    img.Format,
			Prompt: PrimaryArg(r.Kind, r.Args),
		})
	}
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := StripDataURIs(err.Error())
	if len(msg) > maxErrorText {
		msg = msg[:maxErrorText] + "..."
	}
	return msg
}
