package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nexconsult/recibo-api/internal/automation"
	"github.com/nexconsult/recibo-api/internal/config"
	"github.com/nexconsult/recibo-api/internal/logger"
	"github.com/nexconsult/recibo-api/internal/models"
	"github.com/nexconsult/recibo-api/internal/services"
	"github.com/nexconsult/recibo-api/internal/utils"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download one bill",
	Long: `Fill the portal form once and save the captured PDF.

The file name is the one the portal suggests unless --output is given.
Use "--output -" to write the PDF to stdout; logs always go to stderr.`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	flags := fetchCmd.Flags()
	flags.StringP("customer", "c", "", "customer (supply) number (required)")
	flags.StringP("doc-number", "d", "", "holder document number (required)")
	flags.String("doc-type", models.DefaultDocumentType, "holder document type")
	flags.String("year", "", "bill year (optional)")
	flags.String("month", "", "bill month 1-12 (optional)")
	flags.StringP("output", "o", "", "output file or directory (default: suggested name in the current directory)")
	flags.Bool("headful", false, "show the browser window")
	flags.Bool("dump", false, "write failure screenshots and traces to DEBUG_DIR")
	flags.Bool("stats", false, "record the outcome in Redis when REDIS_ENABLED is set")

	_ = fetchCmd.MarkFlagRequired("customer")
	_ = fetchCmd.MarkFlagRequired("doc-number")
}

func runFetch(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	customer, _ := flags.GetString("customer")
	docNumber, _ := flags.GetString("doc-number")
	docType, _ := flags.GetString("doc-type")
	year, _ := flags.GetString("year")
	month, _ := flags.GetString("month")
	output, _ := flags.GetString("output")
	headful, _ := flags.GetBool("headful")
	dump, _ := flags.GetBool("dump")
	stats, _ := flags.GetBool("stats")

	input := (&models.RetrieveRequest{
		CustomerNumber: models.FlexString(customer),
		DocumentType:   models.FlexString(docType),
		DocumentNumber: models.FlexString(docNumber),
		Year:           models.FlexString(year),
		Month:          models.FlexString(month),
	}).Input()
	if err := input.Validate(); err != nil {
		var parts []string
		for _, fe := range models.ValidationMessages(err) {
			parts = append(parts, fe.Field+" "+fe.Message)
		}
		return fmt.Errorf("invalid arguments: %s", strings.Join(parts, "; "))
	}

	cfg, err := config.LoadCLI()
	if err != nil {
		return err
	}
	if headful {
		cfg.Browser.Headless = false
	}
	if dump {
		cfg.Debug.Enabled = true
	}
	cfg.Redis.Enabled = cfg.Redis.Enabled && stats

	level := cfg.Log.Level
	if override, _ := cmd.Flags().GetString("log-level"); override != "" {
		level = override
	}
	log := logger.NewWithOutput(level, "text", cmd.ErrOrStderr())

	container, err := services.NewContainer(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.WithError(err).Warn("Failed to release services")
		}
	}()

	start := time.Now()
	outcome := container.ReceiptService.Retrieve(context.Background(), automation.Request{
		CustomerNumber: input.CustomerNumber,
		DocumentType:   input.DocumentType,
		DocumentNumber: input.DocumentNumber,
		Year:           input.Year,
		Month:          input.Month,
	})

	doc, ok := automation.DocumentOf(outcome)
	if !ok {
		return outcomeError(outcome, container.ReceiptService.LandingURL())
	}

	written, err := writeDocument(cmd.OutOrStdout(), output, doc, input.CustomerNumber)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"outcome":     automation.Kind(outcome),
		"file":        written,
		"bytes":       len(doc.Bytes),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Bill saved")
	return nil
}

// outcomeError turns a failed outcome into the error reported to the user.
func outcomeError(outcome automation.Outcome, portalURL string) error {
	switch v := outcome.(type) {
	case automation.NotFound:
		return fmt.Errorf("%s (%s)", v.Reason.Message(), v.Reason)
	case automation.ObstacleDetected:
		return fmt.Errorf("the portal showed a %s challenge; finish the download manually at %s", v.Kind, portalURL)
	case automation.TransportFailure:
		return fmt.Errorf("retrieval failed: %s", v.Message())
	default:
		return fmt.Errorf("unexpected outcome %T", outcome)
	}
}

// writeDocument saves doc according to output: "-" for stdout, an existing
// directory, an explicit file path, or "" for the current directory.
func writeDocument(stdout io.Writer, output string, doc automation.Document, customer string) (string, error) {
	if output == "-" {
		if _, err := stdout.Write(doc.Bytes); err != nil {
			return "", fmt.Errorf("write stdout: %w", err)
		}
		return "-", nil
	}

	name := utils.SanitizeFilename(doc.Filename)
	if name == "" {
		name = automation.DefaultFilename(customer)
	}

	path := output
	switch {
	case output == "":
		path = name
	default:
		if info, err := os.Stat(output); err == nil && info.IsDir() {
			path = filepath.Join(output, name)
		}
	}

	if err := os.WriteFile(path, doc.Bytes, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
