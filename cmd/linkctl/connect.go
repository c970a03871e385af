package main

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/qiminjie89/linkkit/pkg/transport"
)

var (
	connectMessages []string
	connectNoReply  bool
)

var connectCmd = &cobra.Command{
	Use:   "connect [address]",
	Short: "Connect to a peer, send messages and print the replies",
	Long: `Connect to a peer and send each --message (or each line of stdin when no
--message is given). After every message one reply is received and printed
unless --no-reply is set.

Examples:
  linkctl connect ws://127.0.0.1:8080 -m "Hello via WebSocket!"
  linkctl connect -k quic --insecure 127.0.0.1:4433 < lines.txt
  linkctl connect -k webrtc --config linkctl.yaml webrtc://bob`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var addr string
		if len(args) > 0 {
			addr = args[0]
		}
		plan, err := buildPlan(linkCfg, transport.RoleInitiator, addr)
		if err != nil {
			return err
		}

		ctx, cancel := commandContext()
		defer cancel()

		opts := transportOptions(linkCfg, plan.Kind)
		if plan.Kind == transport.KindWebRTC {
			sc, err := dialSignaling(ctx, linkCfg)
			if err != nil {
				return err
			}
			defer sc.Close()
			opts = append(opts, transport.WithSignaler(sc))
		}

		open := func(ctx context.Context) (transport.Conn, error) {
			return transport.Open(ctx, plan, opts...)
		}
		return transport.WithConn(ctx, open, func(c transport.Conn) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "connected %s %s -> %s\n", c.Kind(), c.LocalAddr(), c.RemoteAddr())

			if len(connectMessages) > 0 {
				for _, m := range connectMessages {
					if err := exchange(ctx, c, out, []byte(m)); err != nil {
						return err
					}
				}
				return nil
			}
			sc := bufio.NewScanner(cmd.InOrStdin())
			for sc.Scan() {
				if err := exchange(ctx, c, out, sc.Bytes()); err != nil {
					return err
				}
			}
			return sc.Err()
		})
	},
}

// exchange 发送一条消息，需要时等待一条回复
func exchange(ctx context.Context, c transport.Conn, out io.Writer, msg []byte) error {
	if err := c.Send(ctx, msg); err != nil {
		return err
	}
	if connectNoReply {
		return nil
	}
	reply, err := c.Receive(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\n", reply)
	return nil
}

func init() {
	connectCmd.Flags().StringArrayVarP(&connectMessages, "message", "m", nil, "message to send (repeatable)")
	connectCmd.Flags().BoolVar(&connectNoReply, "no-reply", false, "do not wait for a reply after each message")
}
