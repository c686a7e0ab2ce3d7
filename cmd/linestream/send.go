package main

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Zereker/linestream"
)

var sendFlags struct {
	addr  string
	count int
	text  string
	n     uint32
	ping  bool
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a burst of messages and report the send rate",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		if flags.Changed("addr") {
			cfg.Addr = sendFlags.addr
		}
		if flags.Changed("count") {
			cfg.Send.Count = sendFlags.count
		}
		if flags.Changed("text") {
			cfg.Send.Text = sendFlags.text
		}
		if flags.Changed("n") {
			cfg.Send.N = sendFlags.n
		}

		var msg linestream.Message = linestream.Hello{Text: cfg.Send.Text, Count: cfg.Send.N}
		if sendFlags.ping {
			msg = linestream.Ping{}
		}

		var d net.Dialer
		conn, err := d.DialContext(cmd.Context(), "tcp", cfg.Addr)
		if err != nil {
			return errors.Wrapf(err, "dial %s", cfg.Addr)
		}
		defer conn.Close()

		rate, err := send(conn, msg, cfg.Send.Count)
		if err != nil {
			return err
		}
		logger.Info("sent", "addr", cfg.Addr, "messages", cfg.Send.Count, "messages_per_second", rate)
		return nil
	},
}

// send writes msg count times to conn and returns the achieved rate in
// messages per second.
func send(conn net.Conn, msg linestream.Message, count int) (float64, error) {
	frame, err := linestream.JSONCodec{}.Encode(msg)
	if err != nil {
		return 0, err
	}

	enc := linestream.NewEncoder(conn, nil)
	start := time.Now()
	for i := 0; i < count; i++ {
		if err := enc.WriteFrame(frame); err != nil {
			return 0, err
		}
	}
	if err := enc.Flush(); err != nil {
		return 0, err
	}
	return float64(count) / time.Since(start).Seconds(), nil
}

func init() {
	flags := sendCmd.Flags()
	flags.StringVar(&sendFlags.addr, "addr", "", "server address (default 127.0.0.1:5555)")
	flags.IntVar(&sendFlags.count, "count", 0, "number of messages (default 100000)")
	flags.StringVar(&sendFlags.text, "text", "", "Hello text (default \"Hello\")")
	flags.Uint32Var(&sendFlags.n, "n", 0, "Hello count (default 12)")
	flags.BoolVar(&sendFlags.ping, "ping", false, "send Ping instead of Hello")
}
