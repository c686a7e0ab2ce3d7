package main

import (
	"context"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Zereker/linestream"
)

var serveFlags struct {
	addr       string
	mode       string
	bufferSize int
	strictEOF  bool
	heartbeat  time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept connections and count the messages each one sends",
	Long: `Serve listens for TCP connections and reads each with the selected
reader shape (next, lend, gen or poll). When a peer closes its stream the
message summary for that connection is logged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		applyServeFlags(cmd)
		if err := cfg.validate(); err != nil {
			return err
		}

		mode, err := linestream.ParseMode(cfg.Mode)
		if err != nil {
			return err
		}

		addr, err := net.ResolveTCPAddr("tcp", cfg.Addr)
		if err != nil {
			return errors.Wrapf(err, "resolve %s", cfg.Addr)
		}

		server, err := linestream.New(addr, linestream.ServerLoggerOption(logger))
		if err != nil {
			return errors.Wrap(err, "failed to create server")
		}

		err = server.Serve(cmd.Context(), &counter{mode: mode})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func applyServeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.Addr = serveFlags.addr
	}
	if flags.Changed("mode") {
		cfg.Mode = serveFlags.mode
	}
	if flags.Changed("buffer-size") {
		cfg.BufferSize = serveFlags.bufferSize
	}
	if flags.Changed("strict-eof") {
		cfg.StrictEOF = serveFlags.strictEOF
	}
	if flags.Changed("heartbeat") {
		cfg.Heartbeat = serveFlags.heartbeat
	}
}

// counter tallies the messages of every connection it handles.
type counter struct {
	mode linestream.Mode
}

func (c *counter) Handle(ctx context.Context, id uuid.UUID, conn *net.TCPConn) {
	var sum linestream.Summary
	opts := []linestream.Option{
		linestream.ModeOption(c.mode),
		linestream.MessageMaxSize(cfg.BufferSize),
		linestream.HeartbeatOption(cfg.Heartbeat),
		linestream.LoggerOption(logger),
		linestream.MetricsOption(metrics),
		linestream.OnMessageOption(func(msg linestream.Message) error {
			sum.Add(msg)
			return nil
		}),
	}
	if cfg.StrictEOF {
		opts = append(opts, linestream.StrictEOFOption())
	}

	lc, err := linestream.NewConn(conn, opts...)
	if err != nil {
		logger.Error("failed to create connection", "id", id, "error", err)
		_ = conn.Close()
		return
	}

	start := time.Now()
	err = lc.Run(ctx)
	logger.Info("stream finished",
		"id", id,
		"mode", c.mode,
		"messages", sum.Messages,
		"pings", sum.Pings,
		"hellos", sum.Hellos,
		"count", sum.Count,
		"elapsed", time.Since(start),
		"error", err)
}

func init() {
	flags := serveCmd.Flags()
	flags.StringVar(&serveFlags.addr, "addr", "", "listen address (default 127.0.0.1:5555)")
	flags.StringVar(&serveFlags.mode, "mode", "", "reader shape: next, lend, gen, poll (default next)")
	flags.IntVar(&serveFlags.bufferSize, "buffer-size", 0, "frame buffer capacity in bytes (default 1024)")
	flags.BoolVar(&serveFlags.strictEOF, "strict-eof", false, "fail on an unterminated frame at end of stream")
	flags.DurationVar(&serveFlags.heartbeat, "heartbeat", 0, "idle heartbeat; reads time out after twice this")
}
