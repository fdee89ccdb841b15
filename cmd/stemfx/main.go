package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cbegin/stemfx-go"
)

func main() {
	var (
		analysisPath = flag.String("analysis", "", "path to an analysis cache JSON file")
		midiPath     = flag.String("midi", "", "path to a Standard MIDI File with note tracks")
		mmlPath      = flag.String("mml-file", "", "path to an MML file with note tracks")
		mmlInline    = flag.String("mml", "", "inline MML string with note tracks")
		noteStem     = flag.String("note-stem", "other", "stem the MIDI/MML notes are attached to")
		triggersPath = flag.String("triggers", "", "path to a trigger definitions JSON file")
		mappingsPath = flag.String("mappings", "", "path to a mapping config JSON file")
		fileID       = flag.String("file-id", "", "file id to read features from (default: first analysis)")
		fps          = flag.Float64("fps", 60, "frames per second")
		start        = flag.Float64("start", 0, "first frame time in seconds")
		end          = flag.Float64("end", 10, "last frame time in seconds")
		estimate     = flag.Bool("estimate-tempo", false, "log a BPM estimate per stem from its transients")
		exportMIDI   = flag.String("export-midi", "", "write the MIDI/MML notes to this path as a Standard MIDI File")
		digestOnly   = flag.Bool("digest", false, "print only the frame digest")
		debug        = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	err := run(logger, options{
		analysisPath: *analysisPath,
		midiPath:     *midiPath,
		mmlPath:      *mmlPath,
		mmlInline:    *mmlInline,
		noteStem:     *noteStem,
		triggersPath: *triggersPath,
		mappingsPath: *mappingsPath,
		fileID:       *fileID,
		fps:          *fps,
		start:        *start,
		end:          *end,
		estimate:     *estimate,
		exportMIDI:   *exportMIDI,
		digestOnly:   *digestOnly,
	})
	if err != nil {
		logger.Error("stemfx failed", "err", err)
		os.Exit(1)
	}
}

type options struct {
	analysisPath, midiPath, mmlPath, mmlInline, noteStem string
	triggersPath, mappingsPath, fileID, exportMIDI       string
	fps, start, end                                      float64
	estimate, digestOnly                                 bool
}

func run(logger *slog.Logger, o options) error {
	var analyses []stemfx.StemAnalysis
	if o.analysisPath != "" {
		var err error
		if analyses, err = stemfx.LoadAnalysis(o.analysisPath); err != nil {
			return err
		}
		logger.Debug("analysis loaded", "path", o.analysisPath, "stems", len(analyses))
	}
	if o.fileID == "" && len(analyses) > 0 {
		o.fileID = analyses[0].FileID
	}

	notes, ok, err := resolveNotes(o.midiPath, o.mmlPath, o.mmlInline)
	if err != nil {
		return err
	}
	if ok {
		stem, valid := parseStem(o.noteStem)
		if !valid {
			return fmt.Errorf("invalid -note-stem %q (expected master|drums|bass|vocals|other)", o.noteStem)
		}
		analyses = stemfx.WithNotes(analyses, o.fileID, stem, notes)
		if o.exportMIDI != "" {
			if err := writeMIDI(o.exportMIDI, notes); err != nil {
				return err
			}
		}
	}
	if len(analyses) == 0 {
		return errors.New("nothing to render: pass -analysis, -midi, -mml or -mml-file")
	}

	if o.estimate {
		for _, a := range analyses {
			if len(a.Transients) == 0 {
				continue
			}
			bpm, err := stemfx.EstimateBPM(a.Transients, 0, 0)
			if err != nil {
				logger.Warn("tempo estimate failed", "fileID", a.FileID, "stem", a.Stem, "err", err)
				continue
			}
			logger.Info("tempo estimate", "fileID", a.FileID, "stem", a.Stem, "bpm", bpm)
		}
	}

	v := stemfx.New(analyses, stemfx.WithFileID(o.fileID), stemfx.WithLogger(logger))
	if o.mappingsPath != "" {
		cfg, err := stemfx.LoadMappings(o.mappingsPath)
		if err != nil {
			return err
		}
		v.SetMappings(cfg.Mappings, cfg.Bases)
	}
	var triggers []stemfx.Trigger
	if o.triggersPath != "" {
		if triggers, err = stemfx.LoadTriggers(o.triggersPath); err != nil {
			return err
		}
	}

	times := stemfx.FrameTimes(o.start, o.end, o.fps)
	if len(times) == 0 {
		return fmt.Errorf("empty frame range %v..%v at %v fps", o.start, o.end, o.fps)
	}
	frames, err := stemfx.Render(context.Background(), v, triggers, times)
	if err != nil {
		return err
	}
	if fb := v.Fallbacks(); fb > 0 {
		logger.Warn("features read from another file's analysis", "lookups", fb)
	}

	digest := stemfx.FrameDigest(frames)
	if o.digestOnly {
		fmt.Println(digest)
		return nil
	}
	w := bufio.NewWriter(os.Stdout)
	enc := json.NewEncoder(w)
	for _, f := range frames {
		if err := enc.Encode(f); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	logger.Info("rendered", "frames", len(frames), "digest", digest)
	return nil
}

func resolveNotes(midiPath, mmlPath, mmlInline string) (stemfx.NoteSource, bool, error) {
	switch {
	case strings.TrimSpace(mmlInline) != "":
		src, err := stemfx.ParseMML(mmlInline)
		return src, err == nil, err
	case strings.TrimSpace(mmlPath) != "":
		src, err := stemfx.LoadMML(mmlPath)
		return src, err == nil, err
	case strings.TrimSpace(midiPath) != "":
		src, err := stemfx.LoadMIDI(midiPath)
		return src, err == nil, err
	}
	return stemfx.NoteSource{}, false, nil
}

func parseStem(name string) (stemfx.Stem, bool) {
	switch s := stemfx.Stem(strings.ToLower(strings.TrimSpace(name))); s {
	case stemfx.StemMaster, stemfx.StemDrums, stemfx.StemBass, stemfx.StemVocals, stemfx.StemOther:
		return s, true
	}
	return "", false
}

func writeMIDI(path string, src stemfx.NoteSource) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := stemfx.WriteMIDI(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
