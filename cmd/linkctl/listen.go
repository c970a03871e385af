package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/qiminjie89/linkkit/pkg/transport"
)

var listenNoEcho bool

var listenCmd = &cobra.Command{
	Use:   "listen [address]",
	Short: "Accept exactly one peer and echo its messages back",
	Long: `Bind the address, wait for exactly one peer, then print every message it
sends and echo it back until the peer closes the connection.

Examples:
  linkctl listen 127.0.0.1:8080
  linkctl listen ws://0.0.0.0:8080/link
  linkctl listen -k quic 0.0.0.0:4433`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var addr string
		if len(args) > 0 {
			addr = args[0]
		}
		plan, err := buildPlan(linkCfg, transport.RoleAcceptor, addr)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		opts := transportOptions(linkCfg, plan.Kind)
		open := func(ctx context.Context) (transport.Conn, error) {
			return transport.Open(ctx, plan, opts...)
		}
		return transport.WithConn(ctx, open, func(c transport.Conn) error {
			return echo(ctx, c, cmd.OutOrStdout(), !listenNoEcho)
		})
	},
}

var answerCmd = &cobra.Command{
	Use:   "answer",
	Short: "Answer one WebRTC offer through the signaling relay and echo messages",
	Long: `Register with the signaling relay configured under webrtc.signaling, wait for
one offer, and echo every message received on the data channel.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := commandContext()
		defer cancel()

		sc, err := dialSignaling(ctx, linkCfg)
		if err != nil {
			return err
		}
		defer sc.Close()

		opts := transportOptions(linkCfg, transport.KindWebRTC)
		open := func(ctx context.Context) (transport.Conn, error) {
			return transport.AcceptWebRTC(ctx, sc, opts...)
		}
		return transport.WithConn(ctx, open, func(c transport.Conn) error {
			return echo(ctx, c, cmd.OutOrStdout(), !listenNoEcho)
		})
	},
}

// echo 打印收到的消息并原样发回，对端关闭时正常返回
func echo(ctx context.Context, c transport.Conn, out io.Writer, reply bool) error {
	fmt.Fprintf(out, "accepted %s %s <- %s\n", c.Kind(), c.LocalAddr(), c.RemoteAddr())
	for {
		msg, err := c.Receive(ctx)
		if errors.Is(err, transport.ErrConnectionClosed) {
			fmt.Fprintln(out, "peer closed")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", msg)
		if !reply {
			continue
		}
		if err := c.Send(ctx, msg); err != nil {
			return err
		}
	}
}

func init() {
	listenCmd.Flags().BoolVar(&listenNoEcho, "no-echo", false, "print messages without echoing them back")
	answerCmd.Flags().BoolVar(&listenNoEcho, "no-echo", false, "print messages without echoing them back")
}
