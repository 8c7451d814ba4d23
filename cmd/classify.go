package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvr-ai/go-faceid/images"
	"github.com/nvr-ai/go-faceid/inference"
	"github.com/nvr-ai/go-faceid/util"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	dumpDir      string
	thumbnailMax uint
	showProgress bool
)

// fileResult is one line of classify output.
type fileResult struct {
	Path    string             `json:"path"`
	Results []inference.Result `json:"results,omitempty"`
	Error   string             `json:"error,omitempty"`
}

var classifyCmd = &cobra.Command{
	Use:   "classify <image-or-dir>...",
	Short: "Classify the faces in image files and print one JSON line per file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClassify(cmd, args)
	},
}

func init() {
	classifyCmd.Flags().StringVar(&dumpDir, "dump-dir", "", "Write a JPEG thumbnail of every classified face to this directory")
	classifyCmd.Flags().UintVar(&thumbnailMax, "thumbnail-size", 160, "Maximum side of the dumped thumbnails")
	classifyCmd.Flags().BoolVar(&showProgress, "progress", true, "Show a progress bar on stderr when classifying several images")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	paths, err := util.ExpandImagePaths(args)
	if err != nil {
		return err
	}
	if dumpDir != "" {
		if err := os.MkdirAll(dumpDir, 0o755); err != nil {
			return errors.Wrapf(err, "create %s", dumpDir)
		}
	}

	engine, err := buildEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	var bar *progressbar.ProgressBar
	if showProgress && len(paths) > 1 {
		bar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("🔍 Classifying"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
		defer bar.Finish()
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	failed := 0
	for _, path := range paths {
		if err := cmd.Context().Err(); err != nil {
			return err
		}

		src := images.FromFile(path)
		results, err := engine.Classify(cmd.Context(), src)
		line := fileResult{Path: path, Results: results}
		if err != nil {
			failed++
			line.Error = err.Error()
			logger.WithError(err).WithField("path", path).Warn("classification failed")
		} else if dumpDir != "" {
			if err := dumpFaces(src, results); err != nil {
				logger.WithError(err).WithField("path", path).Warn("could not dump faces")
			}
		}

		if err := enc.Encode(line); err != nil {
			return errors.Wrap(err, "write result")
		}
		if bar != nil {
			bar.Add(1)
		}
	}

	return batchError(failed, len(paths))
}

// batchError reports how many images of a batch failed, or nil when none did.
func batchError(failed, total int) error {
	if failed == 0 {
		return nil
	}
	return errors.Errorf("%d of %d images could not be classified", failed, total)
}

// dumpFaces writes one thumbnail per result, named after the image, face order and class.
func dumpFaces(src images.Source, results []inference.Result) error {
	if len(results) == 0 {
		return nil
	}

	mat, err := src.Decode()
	if err != nil {
		return err
	}
	defer mat.Close()

	img, err := mat.ToImage()
	if err != nil {
		return errors.Wrap(err, "convert image")
	}

	for i, r := range results {
		out := filepath.Join(dumpDir, thumbnailName(src.Path, i, r.Class))
		if err := images.SaveThumbnail(out, img, r.Box, thumbnailMax); err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{"path": out, "class": r.Class}).Debug("face dumped")
	}
	return nil
}

func thumbnailName(path string, index int, class string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return fmt.Sprintf("%s-face%d-%s.jpg", base, index, class)
}
