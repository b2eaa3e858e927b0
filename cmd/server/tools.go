package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"clob/api/grpcserver"
	"clob/config"
	"clob/infra/codec"
	"clob/infra/store"
	entrywal "clob/infra/wal/entry"
	"clob/service"
	"clob/snapshot"
)

// ---------------- journal ----------------

var journalRaw bool

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Print every journal record as a JSON line",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		dec, err := codec.New(cfg.Events.Encoding)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		var printer codec.JSONSerializer

		last, err := entrywal.Replay(cfg.Journal.Dir, func(r *entrywal.Record) error {
			if journalRaw {
				_, err := fmt.Fprintf(out, "%d\t%s\t%s\t%x\n", r.Seq, r.Type, time.Unix(0, r.Time).UTC().Format(time.RFC3339Nano), r.Data)
				return err
			}
			ev, err := dec.Decode(r.Data)
			if err != nil {
				return errors.Wrapf(err, "seq %d", r.Seq)
			}
			line, err := printer.Encode(ev)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, string(line))
			return err
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "last seq %d\n", last)
		return nil
	},
}

// ---------------- snapshot ----------------

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Write a snapshot of a stopped engine's store",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.Maintenance.SnapshotDir == "" {
			return errors.New("maintenance.snapshot_dir is not set")
		}
		st, err := store.Open(cfg.Store.Dir)
		if err != nil {
			return err
		}
		defer st.Close()

		eng, err := service.New(service.Deps{
			Market:       cfg.Market.Market(),
			BookCapacity: cfg.Book.Capacity,
			Store:        st,
			Logger:       zap.NewNop(),
		})
		if err != nil {
			return err
		}
		if err := eng.Recover(cmd.Context()); err != nil {
			return err
		}
		s, err := eng.Snapshot()
		if err != nil {
			return err
		}
		path, err := (&snapshot.Writer{Dir: cfg.Maintenance.SnapshotDir}).Write(s)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s seq=%d accounts=%d\n", path, s.Seq, len(s.Accounts))
		return nil
	},
}

// ---------------- query ----------------

var (
	queryAddr  string
	queryDepth int
)

var queryCmd = &cobra.Command{
	Use:   "query market | book <bid|ask> | account <address>",
	Short: "Query a running engine over gRPC",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := grpc.NewClient(queryAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		client := grpcserver.NewClient(conn)

		var resp *structpb.Struct
		switch {
		case args[0] == "market":
			resp, err = client.Market(ctx)
		case args[0] == "book" && len(args) == 2:
			resp, err = client.Book(ctx, args[1], queryDepth)
		case args[0] == "account" && len(args) == 2:
			addr, perr := solana.PublicKeyFromBase58(args[1])
			if perr != nil {
				return errors.Wrap(perr, "account address")
			}
			resp, err = client.Account(ctx, addr)
		default:
			return cmd.Usage()
		}
		if err != nil {
			return err
		}
		b, err := protojson.MarshalOptions{Multiline: true}.Marshal(resp)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
		return err
	},
}

func init() {
	journalCmd.Flags().BoolVar(&journalRaw, "raw", false, "print payloads as hex instead of decoding them")
	queryCmd.Flags().StringVar(&queryAddr, "addr", "localhost:50051", "engine gRPC address")
	queryCmd.Flags().IntVar(&queryDepth, "depth", 10, "price levels to show")
}

