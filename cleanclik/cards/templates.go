package cards

import (
	"fmt"
	"html/template"
)

type TemplateKind string

const (
	TemplateAchievement TemplateKind = "achievement"
	TemplateImpact      TemplateKind = "impact"
	TemplateProgress    TemplateKind = "progress"
)

// rotationOrder is the cycle unthemed generations walk through.
var rotationOrder = [...]TemplateKind{TemplateAchievement, TemplateImpact, TemplateProgress}

// KindAt maps a persisted rotation index onto the cycle.
func KindAt(index int) TemplateKind {
	return rotationOrder[index%len(rotationOrder)]
}

// RotationCycle is the number of template kinds in one full rotation.
const RotationCycle = len(rotationOrder)

func ValidKind(s string) bool {
	switch TemplateKind(s) {
	case TemplateAchievement, TemplateImpact, TemplateProgress, "":
		return true
	}
	return false
}

type PlatformTarget string

const (
	PlatformSquare    PlatformTarget = "square"
	PlatformLandscape PlatformTarget = "landscape"
	PlatformStory     PlatformTarget = "story"
)

// Dimensions returns the output pixel size for a platform target.
func (p PlatformTarget) Dimensions() (width, height int) {
	switch p {
	case PlatformLandscape:
		return 1200, 630
	case PlatformStory:
		return 1080, 1920
	default:
		return 1080, 1080
	}
}

func ValidPlatform(s string) bool {
	switch PlatformTarget(s) {
	case PlatformSquare, PlatformLandscape, PlatformStory:
		return true
	}
	return false
}

// Palette is the color scheme a template kind renders with. Values are
// template.CSS so html/template does not filter the gradient syntax.
type Palette struct {
	Background template.CSS
	Accent     template.CSS
	Text       template.CSS
}

// TemplateAsset is a reusable rendering resource: a parsed template plus the
// style bundle for one kind x platform combination. Shared across requests
// through the asset cache, never owned by a single request.
type TemplateAsset struct {
	Kind     TemplateKind
	Platform PlatformTarget
	Width    int
	Height   int
	Palette  Palette
	Font     string
	Template *template.Template
}

var palettes = map[TemplateKind]Palette{
	TemplateAchievement: {Background: "linear-gradient(135deg, #2E7D32, #66BB6A)", Accent: "#FFD54F", Text: "#FFFFFF"},
	TemplateImpact:      {Background: "linear-gradient(135deg, #0277BD, #4FC3F7)", Accent: "#AED581", Text: "#FFFFFF"},
	TemplateProgress:    {Background: "linear-gradient(135deg, #6A1B9A, #AB47BC)", Accent: "#80DEEA", Text: "#FFFFFF"},
}

const cardTemplate = `<html>
<head><style>
  body { margin: 0; font-family: {{.Font}}, sans-serif; }
  #card-container {
    width: {{.Width}}px; height: {{.Height}}px;
    background: {{.Palette.Background}};
    color: {{.Palette.Text}};
    display: flex; flex-direction: column; justify-content: space-between;
    padding: 48px; box-sizing: border-box;
  }
  .headline { font-size: 64px; font-weight: 700; }
  .points { font-size: 48px; color: {{.Palette.Accent}}; }
  .fact, .impact, .message { font-size: 36px; }
  .cta { display: flex; align-items: center; gap: 24px; font-size: 28px; }
  .cta img { width: 160px; height: 160px; }
</style></head>
<body>
<div id="card-container">
  <div class="headline">{{.Content.Headline}}</div>
  <div class="points">{{.Content.PointsLine}}</div>
  <div class="fact">{{.Content.Fact}}</div>
  <div class="impact">{{.Content.Impact}}</div>
  <div class="message">{{.Content.Message}}</div>
  <div class="cta">
    <img src="data:image/png;base64,{{.Content.QRBase64}}" alt=""/>
    <span>{{.Content.CallToAction}}</span>
  </div>
</div>
</body>
</html>`

// buildTemplateAsset constructs the asset for one combination. Construction
// parses the template, so it goes through the single-flight cache.
func buildTemplateAsset(kind TemplateKind, platform PlatformTarget) (*TemplateAsset, error) {
	tmpl, err := template.New(fmt.Sprintf("card-%s-%s", kind, platform)).Parse(cardTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse card template: %w", err)
	}

	width, height := platform.Dimensions()
	return &TemplateAsset{
		Kind:     kind,
		Platform: platform,
		Width:    width,
		Height:   height,
		Palette:  palettes[kind],
		Font:     "Inter",
		Template: tmpl,
	}, nil
}
