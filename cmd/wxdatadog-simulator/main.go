// Package main generates synthetic weewx loop packets and archive records and
// delivers them to a running wxdatadog, for trying out a configuration
// without a weather station.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chrissnell/wxdatadog/internal/constants"
	"github.com/chrissnell/wxdatadog/internal/log"
	"github.com/chrissnell/wxdatadog/pkg/responseformat"
	"github.com/spf13/pflag"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

type sender struct {
	baseURL string
	udp     net.Conn
	msgpack bool
	client  *http.Client
	logger  *zap.SugaredLogger
}

func main() {
	baseURL := pflag.String("url", "http://127.0.0.1:8180", "Base URL of the wxdatadog HTTP ingest server")
	udpAddr := pflag.String("udp", "", "Send loop packets as UDP datagrams to this address instead of HTTP")
	loopInterval := pflag.Duration("loop-interval", 2500*time.Millisecond, "Time between loop packets (0 disables them)")
	archiveInterval := pflag.Duration("archive-interval", 5*time.Minute, "Time between archive records (0 disables them)")
	useMsgpack := pflag.Bool("msgpack", false, "Post MessagePack bodies instead of JSON")
	seed := pflag.Int64("seed", time.Now().UnixNano(), "Random seed")
	debug := pflag.Bool("debug", false, "Turn on debugging output")
	pflag.Parse()

	if err := log.Init(*debug, log.FileConfig{}); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger := log.GetSugaredLogger()

	s := &sender{
		baseURL: strings.TrimRight(*baseURL, "/"),
		msgpack: *useMsgpack,
		client:  &http.Client{Timeout: 5 * time.Second},
		logger:  logger,
	}
	if *udpAddr != "" {
		conn, err := net.Dial("udp", *udpAddr)
		if err != nil {
			log.Fatalf("could not dial %s: %v", *udpAddr, err)
		}
		defer conn.Close()
		s.udp = conn
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shutdown handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	logger.Infof("simulator starting: loop every %v, archive every %v", *loopInterval, *archiveInterval)
	run(ctx, s, NewWeatherEmulator(*seed), *loopInterval, *archiveInterval)
}

func run(ctx context.Context, s *sender, emu *WeatherEmulator, loopInterval, archiveInterval time.Duration) {
	loopC := tick(loopInterval)
	archiveC := tick(archiveInterval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-loopC:
			if err := s.sendLoop(ctx, emu.LoopPacket()); err != nil {
				s.logger.Errorf("error sending loop packet: %v", err)
			}
		case <-archiveC:
			if err := s.post(ctx, "/v1/archive", emu.ArchiveRecord(archiveInterval)); err != nil {
				s.logger.Errorf("error sending archive record: %v", err)
			}
		}
	}
}

// tick returns a ticker channel, or nil (never ready) when d is zero
func tick(d time.Duration) <-chan time.Time {
	if d <= 0 {
		return nil
	}
	return time.NewTicker(d).C
}

func (s *sender) sendLoop(ctx context.Context, packet map[string]any) error {
	if s.udp == nil {
		return s.post(ctx, "/v1/loop", packet)
	}

	body, err := json.Marshal(packet)
	if err != nil {
		return err
	}
	if _, err := s.udp.Write(body); err != nil {
		return fmt.Errorf("error writing datagram: %w", err)
	}
	s.logger.Debugf("sent loop packet at %v over UDP", packet["dateTime"])
	return nil
}

func (s *sender) post(ctx context.Context, path string, packet map[string]any) error {
	contentType := "application/json"
	var body []byte
	var err error
	if s.msgpack {
		contentType = responseformat.ContentTypeMsgPack
		body, err = msgpack.Marshal(packet)
	} else {
		body, err = json.Marshal(packet)
	}
	if err != nil {
		return fmt.Errorf("error encoding packet: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", constants.UserAgent+" simulator")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("error sending HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("bad response from server (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	s.logger.Debugf("posted %s at %v", path, packet["dateTime"])
	return nil
}
