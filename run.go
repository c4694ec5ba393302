package sapling

import (
	"errors"
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"
)

// RunConfig configures the window opened by Run.
type RunConfig struct {
	Title         string
	Width, Height int
	Resizable     bool
	// OnUpdate, if set, is called once per tick before the stage advances.
	// Returning ebiten.Termination ends the loop without an error.
	OnUpdate func(s *Stage) error
}

// Game adapts a Stage to ebiten.Game. Use it directly to embed a stage in an
// existing Ebitengine loop, or let Run create one.
type Game struct {
	Stage    *Stage
	Device   *EbitenDevice
	OnUpdate func(s *Stage) error
}

// NewGame creates a stage on a new EbitenDevice.
func NewGame(cfg Config) (*Game, error) {
	dev := NewEbitenDevice()
	s, err := NewStage(cfg, dev)
	if err != nil {
		return nil, err
	}
	return &Game{Stage: s, Device: dev}, nil
}

// Update advances the stage by one tick.
func (g *Game) Update() error {
	if g.OnUpdate != nil {
		if err := g.OnUpdate(g.Stage); err != nil {
			return err
		}
	}
	g.Stage.Update(float32(1.0 / float64(ebiten.TPS())))
	return nil
}

// Draw renders the stage onto screen. A lost context skips the frame.
func (g *Game) Draw(screen *ebiten.Image) {
	g.Device.SetScreen(screen)
	if err := g.Stage.Draw(); err != nil && !errors.Is(err, ErrMissingContext) {
		Logger().Error("draw failed", "err", err)
	}
}

// Layout keeps the screen at the configured stage size.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	cfg := g.Stage.Config()
	if cfg.StageWidth <= 0 || cfg.StageHeight <= 0 {
		return outsideWidth, outsideHeight
	}
	return int(cfg.StageWidth), int(cfg.StageHeight)
}

// Run opens a window and drives s until the window closes. s must draw
// through an EbitenDevice.
func Run(s *Stage, rc RunConfig) error {
	dev, ok := s.Device().(*EbitenDevice)
	if !ok {
		return fmt.Errorf("sapling: run: %w", ErrUnsupportedResource)
	}
	w, h := rc.Width, rc.Height
	if w <= 0 || h <= 0 {
		w, h = int(s.cfg.StageWidth), int(s.cfg.StageHeight)
	}
	ebiten.SetWindowSize(w, h)
	if rc.Title != "" {
		ebiten.SetWindowTitle(rc.Title)
	}
	if rc.Resizable {
		ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	}
	err := ebiten.RunGame(&Game{Stage: s, Device: dev, OnUpdate: rc.OnUpdate})
	if errors.Is(err, ebiten.Termination) {
		return nil
	}
	return err
}
