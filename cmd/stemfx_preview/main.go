package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/cbegin/stemfx-go"
	"github.com/cbegin/stemfx-go/internal/audio"
)

const (
	windowW      = 1100
	windowH      = 720
	minWindowW   = 980
	minWindowH   = 680
	uiSampleRate = 48000

	textScale = 2
	charW     = 7 * textScale
	lineH     = 14 * textScale

	maxEventLog = 64
)

var (
	bgColor       = color.RGBA{192, 192, 192, 255}
	panelColor    = color.RGBA{192, 192, 192, 255}
	borderColor   = color.RGBA{128, 128, 128, 255}
	bevelLight    = color.RGBA{255, 255, 255, 255}
	bevelDarker   = color.RGBA{64, 64, 64, 255}
	sunkenBgColor = color.RGBA{24, 24, 32, 255}
	barFillColor  = color.RGBA{0, 0, 128, 255}
	flashColor    = color.RGBA{255, 200, 0, 255}
)

// meters are the features always shown, independent of mappings.
var meters = []string{"master-rms", "drums-peaks", "bass-peaks", "vocals-rms", "master-spectral-centroid"}

type loggedEvent struct {
	label string
}

// flash is an effect currently playing on a layer.
type flash struct {
	until     float64
	intensity float64
}

type game struct {
	vis      *stemfx.Visualizer
	player   *audio.Player
	events   <-chan stemfx.Event
	duration float64

	playing bool
	prev    float64
	primed  bool
	frame   stemfx.Frame

	log     []loggedEvent
	flashes map[string]flash

	status    string
	statusErr bool

	textCache map[string]*ebiten.Image
	viewW     int
	viewH     int
}

func newGame(v *stemfx.Visualizer, transients []stemfx.Transient, duration float64) (*game, error) {
	pl, err := audio.NewPlayer(uiSampleRate, audio.NewClickTrack(uiSampleRate, transients, duration))
	if err != nil {
		return nil, err
	}
	return &game{
		vis:       v,
		player:    pl,
		events:    v.Watch(),
		duration:  duration,
		flashes:   make(map[string]flash),
		status:    "Ready",
		textCache: make(map[string]*ebiten.Image, 256),
		viewW:     windowW,
		viewH:     windowH,
	}, nil
}

// now is the audible playback position in seconds.
func (g *game) now() float64 { return g.player.Position().Seconds() }

func (g *game) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.togglePlayPause()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyHome) {
		g.seek(0)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyRight) {
		g.seek(g.now() + 5)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyLeft) {
		g.seek(max(0, g.now()-5))
	}
	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		mx, my := ebiten.CursorPosition()
		if pointInRect(mx, my, g.layoutRects().play) {
			g.togglePlayPause()
		}
	}

	t := g.now()
	if !g.primed {
		g.prev, g.primed = t, true
	}
	f, err := g.vis.Evaluate(t, g.prev)
	switch {
	case errors.Is(err, stemfx.ErrThrottled):
		// Keep prev so the skipped span is covered by the next window.
	case err != nil:
		g.setError(err.Error())
	default:
		g.prev = t
	}
	g.frame = f
	g.pollEvents()
	if g.playing && t >= g.duration {
		g.player.Pause()
		g.playing = false
		g.setStatus("Playback ended")
	}
	return nil
}

func (g *game) pollEvents() {
	for {
		select {
		case ev := <-g.events:
			g.flashes[ev.LayerID] = flash{until: ev.Time + ev.Effect.Duration, intensity: ev.Effect.Intensity}
			g.log = append(g.log, loggedEvent{
				label: fmt.Sprintf("%6.2fs %s %s/%s %.2f", ev.Time, ev.TriggerID, ev.LayerID, ev.Effect.Kind, ev.Effect.Intensity),
			})
			if len(g.log) > maxEventLog {
				g.log = g.log[len(g.log)-maxEventLog:]
			}
		default:
			return
		}
	}
}

func (g *game) togglePlayPause() {
	if g.playing {
		g.player.Pause()
		g.playing = false
		g.setStatus("Paused")
		return
	}
	if g.now() >= g.duration {
		g.seek(0)
	}
	g.player.Play()
	g.playing = true
	g.setStatus("Playing")
}

// seek jumps playback and forgets trigger history so cooldowns do not
// carry across the jump.
func (g *game) seek(sec float64) {
	if err := g.player.SetPosition(time.Duration(sec * float64(time.Second))); err != nil {
		g.setError(err.Error())
		return
	}
	g.vis.ResetCooldowns()
	g.primed = false
	clear(g.flashes)
}

func (g *game) Layout(outsideW, outsideH int) (int, int) {
	g.viewW = max(outsideW, minWindowW)
	g.viewH = max(outsideH, minWindowH)
	return g.viewW, g.viewH
}

func (g *game) Close() { _ = g.player.Stop() }

type uiLayout struct {
	meters image.Rectangle
	params image.Rectangle
	events image.Rectangle
	play   image.Rectangle
	status image.Rectangle
}

func (g *game) layoutRects() uiLayout {
	const pad = 10
	w, h := g.viewW, g.viewH
	barH := lineH + 16
	left := w * 2 / 5
	top := pad
	bottom := h - pad - barH - pad
	meterH := (len(meters) + 2) * lineH
	return uiLayout{
		meters: image.Rect(pad, top, left-pad/2, top+meterH+16),
		params: image.Rect(pad, top+meterH+16+pad, left-pad/2, bottom),
		events: image.Rect(left+pad/2, top, w-pad, bottom),
		play:   image.Rect(pad, h-pad-barH, pad+10*charW, h-pad),
		status: image.Rect(pad+10*charW+pad, h-pad-barH, w-pad, h-pad),
	}
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(bgColor)
	l := g.layoutRects()
	g.drawSunkenPanel(screen, l.meters)
	g.drawSunkenPanel(screen, l.params)
	g.drawSunkenPanel(screen, l.events)
	g.drawButton(screen, l.play, g.playButtonLabel())
	g.drawSunkenPanel(screen, l.status)

	g.drawMeters(screen, l.meters)
	g.drawParams(screen, l.params)
	g.drawEvents(screen, l.events)
	status := fmt.Sprintf("%7.2fs  %s", g.frame.Time, g.status)
	if n := g.vis.WatchDropped(); n > 0 {
		status += fmt.Sprintf("  (%d events dropped)", n)
	}
	g.drawText(screen, shortenEnd(status, (l.status.Dx()-16)/charW), l.status.Min.X+8, l.status.Min.Y+8)
}

func (g *game) drawMeters(screen *ebiten.Image, rect image.Rectangle) {
	x, y := rect.Min.X+8, rect.Min.Y+8
	g.drawText(screen, "Features", x, y)
	for i, id := range meters {
		row := y + (i+1)*lineH
		g.drawBar(screen, image.Rect(x+14*charW, row+4, rect.Max.X-8, row+lineH-4), g.vis.NormalizedFeature(id, g.frame.Time), barFillColor)
		g.drawText(screen, shortenEnd(id, 13), x, row)
	}
	row := y + (len(meters)+1)*lineH
	chord := fmt.Sprintf("Chord %-3s notes %d", g.frame.Chord, len(g.vis.ActiveNotes(g.frame.Time)))
	g.drawText(screen, shortenEnd(chord, (rect.Dx()-16)/charW), x, row)
}

func (g *game) drawParams(screen *ebiten.Image, rect image.Rectangle) {
	x, y := rect.Min.X+8, rect.Min.Y+8
	g.drawText(screen, "Parameters", x, y)
	maxRows := (rect.Dy() - 16) / lineH
	for i, u := range g.frame.Updates {
		if i+1 >= maxRows {
			break
		}
		row := y + (i+1)*lineH
		v := u.Value / stemfx.ParamScale(u.Param)
		fill := color.Color(barFillColor)
		if fl, ok := g.flashes[u.LayerID]; ok && g.frame.Time < fl.until {
			fill = flashColor
		}
		g.drawBar(screen, image.Rect(x+14*charW, row+4, rect.Max.X-8, row+lineH-4), v, fill)
		g.drawText(screen, shortenEnd(stemfx.ParamKey(u.LayerID, u.Param), 13), x, row)
	}
}

func (g *game) drawEvents(screen *ebiten.Image, rect image.Rectangle) {
	x, y := rect.Min.X+8, rect.Min.Y+8
	g.drawText(screen, "Triggers", x, y)
	maxRows := (rect.Dy()-16)/lineH - 1
	maxChars := (rect.Dx() - 16) / charW
	start := max(0, len(g.log)-maxRows)
	for i, ev := range g.log[start:] {
		g.drawText(screen, shortenEnd(ev.label, maxChars), x, y+(i+1)*lineH)
	}
}

func (g *game) drawBar(screen *ebiten.Image, rect image.Rectangle, v float64, fill color.Color) {
	v = clamp(v, 0, 1)
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), color.RGBA{0, 0, 0, 255})
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx())*v, float64(rect.Dy()), fill)
	drawSunkenBorder(screen, rect)
}

func (g *game) playButtonLabel() string {
	if g.playing {
		return "Pause"
	}
	return "Play"
}

func (g *game) setError(msg string) {
	g.status = msg
	g.statusErr = true
}

func (g *game) setStatus(msg string) {
	g.status = msg
	g.statusErr = false
}

func (g *game) drawSunkenPanel(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), sunkenBgColor)
	drawSunkenBorder(screen, rect)
}

func (g *game) drawButton(screen *ebiten.Image, rect image.Rectangle, label string) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), panelColor)
	drawBorder(screen, rect)
	labelW := len([]rune(label)) * charW
	g.drawText(screen, label, rect.Min.X+(rect.Dx()-labelW)/2, rect.Min.Y+(rect.Dy()-lineH)/2)
}

// drawBorder draws a raised bevel.
func drawBorder(screen *ebiten.Image, rect image.Rectangle) {
	x, y := float64(rect.Min.X), float64(rect.Min.Y)
	w, h := float64(rect.Dx()), float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, bevelLight)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, bevelLight)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelDarker)
	ebitenutil.DrawRect(screen, x+1, y+h-2, w-3, 1, borderColor)
	ebitenutil.DrawRect(screen, x+w-2, y+1, 1, h-3, borderColor)
}

// drawSunkenBorder draws a sunken bevel.
func drawSunkenBorder(screen *ebiten.Image, rect image.Rectangle) {
	x, y := float64(rect.Min.X), float64(rect.Min.Y)
	w, h := float64(rect.Dx()), float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, borderColor)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, borderColor)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelLight)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelLight)
	ebitenutil.DrawRect(screen, x+1, y+1, w-3, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x+1, y+2, 1, h-4, bevelDarker)
}

func (g *game) drawText(screen *ebiten.Image, msg string, x int, y int) {
	if msg == "" {
		return
	}
	img := g.textCache[msg]
	if img == nil {
		img = ebiten.NewImage(max(1, len([]rune(msg))*7), 14)
		ebitenutil.DebugPrintAt(img, msg, 0, 0)
		if len(g.textCache) > 3000 {
			g.textCache = make(map[string]*ebiten.Image, 256)
		}
		g.textCache[msg] = img
	}
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(textScale, textScale)
	op.GeoM.Translate(float64(x), float64(y))
	screen.DrawImage(img, op)
}

func shortenEnd(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return string(r[:max(0, maxChars)])
	}
	return string(r[:maxChars-3]) + "..."
}

func clamp(v, minV, maxV float64) float64 {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

func pointInRect(x, y int, rect image.Rectangle) bool {
	return x >= rect.Min.X && x < rect.Max.X && y >= rect.Min.Y && y < rect.Max.Y
}

// clickSource picks the transients of one stem for the audible click track.
func clickSource(analyses []stemfx.StemAnalysis, fileID string, stem stemfx.Stem) []stemfx.Transient {
	var out []stemfx.Transient
	for _, a := range analyses {
		if a.Stem == stem && (fileID == "" || a.FileID == fileID) {
			out = append(out, a.Transients...)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// duration is the end of the latest frame, transient or note.
func duration(analyses []stemfx.StemAnalysis) float64 {
	var end float64
	for _, a := range analyses {
		if n := len(a.FrameTimes); n > 0 {
			end = max(end, a.FrameTimes[n-1])
		}
		for _, tr := range a.Transients {
			end = max(end, tr.Time)
		}
		for _, track := range a.Tracks {
			for _, n := range track.Notes {
				end = max(end, n.End())
			}
		}
	}
	return end + 1
}

func main() {
	var (
		analysisPath = flag.String("analysis", "", "path to an analysis cache JSON file")
		midiPath     = flag.String("midi", "", "path to a Standard MIDI File with note tracks")
		triggersPath = flag.String("triggers", "", "path to a trigger definitions JSON file")
		mappingsPath = flag.String("mappings", "", "path to a mapping config JSON file")
		fileID       = flag.String("file-id", "", "file id to read features from (default: first analysis)")
		clickStem    = flag.String("click-stem", "drums", "stem whose transients are rendered as clicks")
		debug        = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	fatal := func(msg string, err error) {
		logger.Error(msg, "err", err)
		os.Exit(1)
	}

	if *analysisPath == "" && *midiPath == "" {
		fatal("no input", errors.New("pass -analysis and/or -midi"))
	}
	var analyses []stemfx.StemAnalysis
	if *analysisPath != "" {
		var err error
		if analyses, err = stemfx.LoadAnalysis(*analysisPath); err != nil {
			fatal("load analysis", err)
		}
	}
	if *fileID == "" && len(analyses) > 0 {
		*fileID = analyses[0].FileID
	}
	if *midiPath != "" {
		src, err := stemfx.LoadMIDI(*midiPath)
		if err != nil {
			fatal("load midi", err)
		}
		analyses = stemfx.WithNotes(analyses, *fileID, stemfx.StemOther, src)
	}

	v := stemfx.New(analyses, stemfx.WithFileID(*fileID), stemfx.WithLogger(logger))
	if *mappingsPath != "" {
		cfg, err := stemfx.LoadMappings(*mappingsPath)
		if err != nil {
			fatal("load mappings", err)
		}
		v.SetMappings(cfg.Mappings, cfg.Bases)
	}
	if *triggersPath != "" {
		triggers, err := stemfx.LoadTriggers(*triggersPath)
		if err != nil {
			fatal("load triggers", err)
		}
		for _, t := range triggers {
			v.AddTrigger(t)
		}
	}

	stem := stemfx.Stem(strings.ToLower(*clickStem))
	g, err := newGame(v, clickSource(analyses, *fileID, stem), duration(analyses))
	if err != nil {
		fatal("audio", err)
	}
	defer g.Close()

	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSizeLimits(minWindowW, minWindowH, -1, -1)
	ebiten.SetWindowTitle("stemfx preview")
	if err := ebiten.RunGame(g); err != nil {
		fatal("run", err)
	}
}
