package main

import (
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hyvote/hyquery/internal/wire"
)

func newRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect a running primary's fleet registry",
	}

	var primaryAddr string
	var timeout time.Duration

	show := &cobra.Command{
		Use:   "show",
		Short: "Send a V1 full query to a primary and print its remote-server list",
		RunE: func(cmd *cobra.Command, args []string) error {
			if primaryAddr == "" {
				primaryAddr = viper.GetString("primary_addr")
			}
			if primaryAddr == "" {
				return fmt.Errorf("--primary-addr is required")
			}
			return showRegistry(cmd, primaryAddr, timeout)
		},
	}
	show.Flags().StringVar(&primaryAddr, "primary-addr", "", "host:port of the primary's query listener")
	show.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "socket read/write timeout")

	cmd.AddCommand(show)
	return cmd
}

func showRegistry(cmd *cobra.Command, addr string, timeout time.Duration) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", addr, err)
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(timeout))

	w := wire.NewWriter()
	w.WriteMagic(wire.MagicV1Query)
	w.WriteU8(wire.V1TypeFull)
	if _, err := conn.Write(w.Bytes()); err != nil {
		return fmt.Errorf("sending query: %w", err)
	}

	buf := make([]byte, 65536)
	n, err := conn.Read(buf)
	if err != nil {
		return fmt.Errorf("reading reply: %w", err)
	}

	out := cmd.OutOrStdout()
	r := wire.NewReader(buf[:n])
	magic, err := r.ReadMagic()
	if err != nil || magic != wire.MagicV1Reply {
		return fmt.Errorf("unexpected reply magic %q", magic)
	}
	typ, err := r.ReadU8()
	if err != nil {
		return err
	}
	name, _ := r.ReadString()
	motd, _ := r.ReadString()
	online, _ := r.ReadU32()
	max, _ := r.ReadU32()
	port, _ := r.ReadU32()
	version, _ := r.ReadString()
	fmt.Fprintf(out, "server: %s (%s) online=%d/%d port=%d version=%s\n", name, motd, online, max, port, version)

	if typ != wire.V1TypeFull {
		return nil
	}

	playerCount, _ := r.ReadU32()
	for i := uint32(0); i < playerCount; i++ {
		_, _ = r.ReadString()
		_, _ = r.ReadUUID()
		_, _ = r.ReadString()
	}
	pluginCount, _ := r.ReadU32()
	for i := uint32(0); i < pluginCount; i++ {
		_, _ = r.ReadString()
	}

	remoteCount, err := r.ReadU32()
	if err != nil {
		return nil
	}
	fmt.Fprintf(out, "fleet: %d remote server(s)\n", remoteCount)
	for i := uint32(0); i < remoteCount; i++ {
		id, _ := r.ReadString()
		rname, _ := r.ReadString()
		_, _ = r.ReadString() // MOTD, not shown
		ronline, _ := r.ReadU32()
		rmax, _ := r.ReadU32()
		status, _ := r.ReadU8()
		updatedAt, _ := r.ReadI64()
		rplayers, _ := r.ReadU32()
		for j := uint32(0); j < rplayers; j++ {
			_, _ = r.ReadString()
			_, _ = r.ReadUUID()
			_, _ = r.ReadString()
		}
		statusLabel := "online"
		if status != 0 {
			statusLabel = "stale"
		}
		fmt.Fprintf(out, "  - %s %q online=%d/%d status=%s updatedAt=%s\n",
			id, rname, ronline, rmax, statusLabel, time.UnixMilli(updatedAt).Format(time.RFC3339))
	}
	return nil
}
