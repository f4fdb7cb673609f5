// Command videre runs the detection and tracking pipeline over a video
// file or a synthetic test pattern, logging tracks and optionally
// writing annotated stills and a SQLite run record.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/videre-labs/videre/internal/config"
	"github.com/videre-labs/videre/internal/version"
	"github.com/videre-labs/videre/internal/vision/classnames"
	"github.com/videre-labs/videre/internal/vision/infer"
	"github.com/videre-labs/videre/internal/vision/pipeline"
	"github.com/videre-labs/videre/internal/vision/postprocess"
	"github.com/videre-labs/videre/internal/vision/preprocess"
	"github.com/videre-labs/videre/internal/vision/render"
	"github.com/videre-labs/videre/internal/vision/source"
	"github.com/videre-labs/videre/internal/vision/storage/sqlite"
	"github.com/videre-labs/videre/internal/vision/tracking"
)

var (
	videoPath  = flag.String("video", "", "Path to the input video file (empty runs the synthetic source)")
	modelPath  = flag.String("model", "", "Path to the ONNX detection model")
	ortLib     = flag.String("ort-lib", "", "Path to the onnxruntime shared library (empty uses the platform default)")
	configPath = flag.String("config", "", "Path to a tuning config JSON (empty uses built-in defaults)")
	dbFile     = flag.String("db", "", "SQLite file for run/track persistence (empty disables persistence)")
	overlayDir = flag.String("overlay-dir", "", "Directory for annotated JPEG stills (empty disables overlays)")
	synthCount = flag.Int("synth-frames", 120, "Frame count for the synthetic source")
	verbose    = flag.Bool("v", false, "Enable diag logging")
	trace      = flag.Bool("trace", false, "Enable per-frame trace logging (implies -v)")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println("videre", version.String())
		return
	}

	if *modelPath == "" {
		log.Fatal("-model is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		loaded, err := config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}

	var diagW, traceW io.Writer
	if *verbose || *trace {
		diagW = os.Stderr
	}
	if *trace {
		traceW = os.Stderr
	}
	pipeline.SetLogWriters(os.Stderr, diagW, traceW)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("Pipeline failed: %v", err)
	}
}

func run(ctx context.Context, cfg *config.TuningConfig) error {
	side := cfg.GetModelInputSide()

	if err := infer.Initialize(*ortLib); err != nil {
		return err
	}
	defer infer.Shutdown()

	engine, err := infer.NewONNXEngine(*modelPath, side)
	if err != nil {
		return err
	}
	defer engine.Close()

	var src pipeline.Source
	sourceLabel := *videoPath
	if *videoPath != "" {
		video, err := source.OpenVideoFile(*videoPath)
		if err != nil {
			return err
		}
		src = video
		log.Printf("Opened %s: %dx%d @ %.1f fps", *videoPath, video.Width(), video.Height(), video.FPS())
	} else {
		src = source.NewSynthetic(side, side, *synthCount)
		sourceLabel = "synthetic"
		log.Printf("No video given, running %d synthetic frames", *synthCount)
	}
	defer src.Close()

	pre, err := preprocess.New(side)
	if err != nil {
		return err
	}
	post, err := postprocess.New(side,
		float32(cfg.GetConfidenceThreshold()), float32(cfg.GetNMSIoUThreshold()))
	if err != nil {
		return err
	}

	allowList, err := classnames.ParseAllowList(cfg.GetClassAllowList())
	if err != nil {
		return err
	}
	tracker, err := tracking.New(tracking.Config{
		EnterConfidence: float32(cfg.GetEnterConfidence()),
		KeepConfidence:  float32(cfg.GetKeepConfidence()),
		MatchIoU:        float32(cfg.GetMatchIoU()),
		SmoothingAlpha:  float32(cfg.GetSmoothingAlpha()),
		MinAgeToRender:  cfg.GetMinAgeToRender(),
		GraceLost:       cfg.GetGraceLost(),
	}, allowList)
	if err != nil {
		return err
	}

	var sink pipeline.Sink = render.LogSink{}
	if *overlayDir != "" {
		overlay, err := render.NewOverlaySink(*overlayDir, cfg.GetOverlayEveryFrames())
		if err != nil {
			return err
		}
		sink = overlay
	}

	var recorder pipeline.TrackRecorder
	if *dbFile != "" {
		db, err := sqlite.Open(*dbFile)
		if err != nil {
			return err
		}
		defer db.Close()
		recorder = sqlite.NewStore(db)
	}

	sum, err := pipeline.Run(ctx, pipeline.Config{
		Source:        src,
		Engine:        engine,
		Preprocessor:  pre,
		Postprocessor: post,
		Tracker:       tracker,
		Sink:          sink,
		Recorder:      recorder,
		SourceLabel:   sourceLabel,
		QueueCapacity: cfg.GetQueueCapacity(),
		ProducerDelay: cfg.GetProducerDelay(),
		LogEvery:      cfg.GetLogEveryFrames(),
	})
	if err != nil {
		return err
	}

	report, _ := json.MarshalIndent(sum, "", "  ")
	log.Printf("Run summary:\n%s", report)
	return nil
}
