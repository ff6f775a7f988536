package main

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	natscontainer "github.com/testcontainers/testcontainers-go/modules/nats"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/saviobatista/sbs-approach/internal/capture"
	"github.com/saviobatista/sbs-approach/internal/ingest"
	"github.com/saviobatista/sbs-approach/internal/nats"
	"github.com/saviobatista/sbs-approach/internal/parser"
	"github.com/saviobatista/sbs-approach/internal/testutils"
	"github.com/saviobatista/sbs-approach/internal/types"
	"github.com/saviobatista/sbs-approach/pkg/logger"
)

// serveSBS accepts one connection and writes lines to it
func serveSBS(t *testing.T, lines []string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		for _, l := range lines {
			fmt.Fprintf(conn, "%s\r\n", l)
		}
		time.Sleep(2 * time.Second)
	}()
	return ln.Addr().String()
}

// TestIngestorToAnnouncer sends SBS lines through the ingestor and reads
// the reports back the way cmd/approach does in NATS mode
func TestIngestorToAnnouncer(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := natscontainer.Run(ctx, "nats:2.10-alpine",
		testcontainers.WithWaitStrategy(wait.ForLog("Server is ready")),
	)
	if err != nil {
		t.Skipf("Failed to start NATS container: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("Failed to terminate NATS container: %v", err)
		}
	}()
	natsURL, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("Failed to get NATS connection string: %v", err)
	}

	consumer, err := nats.New(natsURL, nil)
	if err != nil {
		t.Fatalf("Failed to create consumer client: %v", err)
	}
	defer consumer.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	received := make(chan types.PositionReport, 4)
	go func() {
		_ = ingest.NewNATS(consumer, nil).Run(runCtx, func(r types.PositionReport) { received <- r })
	}()
	time.Sleep(200 * time.Millisecond)

	producer, err := nats.New(natsURL, nil)
	if err != nil {
		t.Fatalf("Failed to create producer client: %v", err)
	}
	defer producer.Close()

	addr := serveSBS(t, []string{
		testutils.MockSBSLine(1, "A1B2C3", map[int]string{testutils.SBSFieldCallsign: "UAL123"}),
		testutils.MockSBSLine(4, "A1B2C3", map[int]string{testutils.SBSFieldSpeed: "150", testutils.SBSFieldTrack: "345"}),
		testutils.MockSBSLine(3, "A1B2C3", map[int]string{
			testutils.SBSFieldAltitude: "1800",
			testutils.SBSFieldLat:      "37.6",
			testutils.SBSFieldLon:      "-122.34",
		}),
	})

	assembler := parser.NewAssembler()
	source := ingest.NewSBS(capture.New([]string{addr}, logger.Nop()), assembler, nil, nil)
	fwd := NewForwarder(producer, "integration", logger.Nop())
	go func() {
		_ = run(runCtx, source, fwd, assembler, time.Second, time.Minute, logger.Nop())
	}()

	select {
	case r := <-received:
		if r.AircraftID != "a1b2c3" || r.Callsign != "UAL123" {
			t.Errorf("Unexpected report %+v", r)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Report never reached the announcer side")
	}
}
