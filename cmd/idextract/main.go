/**
 * idextract - command line front end for the extraction pipeline
 *
 *   idextract extract [-text] <file>   run the pipeline locally, print JSON
 *   idextract enqueue <image>          submit an upload to the worker queue
 */

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/adverant/nexus/idextract-worker/internal/config"
	"github.com/adverant/nexus/idextract-worker/internal/extract"
	"github.com/adverant/nexus/idextract-worker/internal/fusion"
	"github.com/adverant/nexus/idextract-worker/internal/lexicon"
	"github.com/adverant/nexus/idextract-worker/internal/logging"
	"github.com/adverant/nexus/idextract-worker/internal/ocr"
	"github.com/adverant/nexus/idextract-worker/internal/queue"
	"github.com/adverant/nexus/idextract-worker/internal/regions"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage:\n  %[1]s extract [-text] <file>\n  %[1]s enqueue <image|pdf>\n", filepath.Base(os.Args[0]))
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	_ = godotenv.Load(".env.idextract")
	cfg := config.FromEnv()
	logging.SetLevel(cfg.LogLevel)

	var err error
	switch os.Args[1] {
	case "extract":
		err = runExtract(cfg, os.Args[2:])
	case "enqueue":
		err = runEnqueue(cfg, os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func runExtract(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	asText := fs.Bool("text", false, "treat the file as an OCR transcript instead of an image")
	fs.Parse(args)
	if fs.NArg() != 1 {
		usage()
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	lex, err := lexicon.Load(cfg.LexiconPath)
	if err != nil {
		return err
	}

	var res *extract.Result
	if *asText {
		res = extract.NewPipeline(&extract.PipelineConfig{Lexicon: lex}).ExtractText(string(data))
	} else {
		backends, err := ocr.NewSet(&ocr.SetConfig{
			PrimaryLangs:   cfg.OCRPrimaryLangs,
			GeneralLangs:   cfg.OCRGeneralLangs,
			TessdataPrefix: cfg.TessdataPrefix,
			VisionURL:      cfg.VisionOCRURL,
			VisionTimeout:  cfg.Timeout(),
		})
		if err != nil {
			return err
		}
		defer backends.Close()

		pipeline := extract.NewPipeline(&extract.PipelineConfig{
			Regions: regions.NewGenerator(cfg.ResizeTargetWidth),
			Fusion: fusion.NewEngine(&fusion.EngineConfig{
				Backends:    backends.Backends,
				Parallelism: cfg.OCRParallelism,
			}),
			Lexicon: lex,
		})

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
		defer cancel()
		res, err = pipeline.ExtractBytes(ctx, "", data)
		if err != nil {
			return err
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func runEnqueue(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		usage()
	}

	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if cfg.MaxImageSize > 0 && int64(len(data)) > cfg.MaxImageSize {
		return fmt.Errorf("%s is %d bytes, limit is %d", path, len(data), cfg.MaxImageSize)
	}

	producer, err := queue.NewProducer(&queue.ProducerConfig{
		Backend:   cfg.QueueBackend,
		RedisURL:  cfg.RedisURL,
		QueueName: cfg.QueueName,
	})
	if err != nil {
		return err
	}
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancel()

	jobID, err := producer.Submit(ctx, &queue.JobPayload{
		Filename:   filepath.Base(path),
		MimeType:   http.DetectContentType(data),
		FileSize:   int64(len(data)),
		FileBuffer: data,
	})
	if err != nil {
		return err
	}

	fmt.Println(jobID)
	return nil
}
