package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tswap/internal/config"
	"tswap/internal/dex"
	"tswap/internal/model"
	"tswap/internal/storage"
)

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode raw pool logs into typed events",
		RunE:  runDecode,
	}
	cmd.Flags().String("in", "", "input JSONL of raw logs")
	cmd.Flags().String("out", "./data/typed_events.jsonl", "output JSONL of typed events")
	cmd.Flags().String("errors", "./data/decode_errors.jsonl", "output JSONL of decode errors")
	cmd.Flags().String("topic0-map", "", "topic0 overrides as topic0=EventName pairs, comma separated")
	addLogLevelFlag(cmd)
	return cmd
}

type decodeCounts struct {
	Total   int `json:"total"`
	Decoded int `json:"decoded"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func runDecode(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadDecode(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	decoder, err := dex.NewPoolDecoder(dex.DecoderConfig{Topic0Map: cfg.Topic0Map})
	if err != nil {
		return err
	}

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	outWriter, err := storage.NewJSONLWriter(cfg.Out, false)
	if err != nil {
		return err
	}
	defer outWriter.Close()

	errWriter, err := storage.NewJSONLWriter(cfg.Errors, false)
	if err != nil {
		return err
	}
	defer errWriter.Close()

	logger.Info("decode start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
		zap.String("errors", cfg.Errors),
		zap.Int("topic0_overrides", len(cfg.Topic0Map)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	counts, err := decodeLogs(ctx, inputFile, decoder, outWriter, errWriter)
	if err != nil {
		return err
	}

	logger.Info("decode complete",
		zap.Int("total", counts.Total),
		zap.Int("decoded", counts.Decoded),
		zap.Int("skipped", counts.Skipped),
		zap.Int("failed", counts.Failed),
	)
	return printJSON(cmd.OutOrStdout(), counts)
}

type recordWriter interface {
	Write(value interface{}) error
}

func decodeLogs(ctx context.Context, in io.Reader, decoder dex.Decoder, out, errs recordWriter) (decodeCounts, error) {
	var counts decodeCounts
	err := storage.ScanLines(in, func(line []byte) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		counts.Total++

		var record model.LogRecord
		if err := json.Unmarshal(line, &record); err != nil {
			counts.Failed++
			return errs.Write(model.DecodeError{Record: counts.Total, Error: err.Error()})
		}
		if len(record.Topics) == 0 {
			counts.Failed++
			return errs.Write(decodeErrorFromRecord(counts.Total, record, fmt.Errorf("missing topic0")))
		}
		if !decoder.CanDecode(record.Topics[0]) {
			counts.Skipped++
			return nil
		}

		event, err := decoder.Decode(record)
		if err != nil {
			counts.Failed++
			return errs.Write(decodeErrorFromRecord(counts.Total, record, err))
		}
		counts.Decoded++
		return out.Write(event)
	})
	return counts, err
}

func decodeErrorFromRecord(n int, record model.LogRecord, err error) model.DecodeError {
	topic0 := ""
	if len(record.Topics) > 0 {
		topic0 = record.Topics[0]
	}

	return model.DecodeError{
		Record:      n,
		ChainID:     record.ChainID,
		BlockNumber: record.BlockNumber,
		TxHash:      record.TxHash,
		LogIndex:    record.LogIndex,
		Pool:        record.Address,
		Topic0:      topic0,
		Error:       err.Error(),
	}
}
