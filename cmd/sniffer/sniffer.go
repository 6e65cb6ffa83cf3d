package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/ble.report/internal/api"
	"github.com/banshee-data/ble.report/internal/ble"
	"github.com/banshee-data/ble.report/internal/capture"
	"github.com/banshee-data/ble.report/internal/config"
	"github.com/banshee-data/ble.report/internal/db"
	"github.com/banshee-data/ble.report/internal/serialmux"
	"github.com/banshee-data/ble.report/internal/slip"
	"github.com/banshee-data/ble.report/internal/version"
)

var (
	devMode        = flag.Bool("dev", false, "Run in dev mode with a synthetic sniffer stream")
	disableSniffer = flag.Bool("disable-sniffer", false, "Run the HTTP server without sniffer hardware")
	listen         = flag.String("listen", "", "Listen address (overrides config)")
	port           = flag.String("port", "", "Serial port (overrides config)")
	baud           = flag.Int("baud", 0, "Serial baud rate (overrides config)")
	dbPath         = flag.String("db", "", "Database path (overrides config)")
	pcapPath       = flag.String("pcap", "", "Write reassembled frames to this pcap file (overrides config)")
	configPath     = flag.String("config", "", "Path to JSON config file")
	showVersion    = flag.Bool("version", false, "Print version and exit")
)

// devStream builds a synthetic capture of a few advertisers so the full
// pipeline runs without hardware.
func devStream() []byte {
	frame := func(counter uint16, mac [6]byte, rssi byte, adData []byte) []byte {
		content := []byte{ble.HeaderLength, 0, ble.ProtoV1, 0, 0, ble.EventPacketAdvPDU}
		binary.LittleEndian.PutUint16(content[3:5], counter)

		payload := []byte{
			0x00,
			0x01, // CRC ok, 1M PHY
			37,
			rssi,
			0x00, 0x00,
			0x00, 0x00, 0x00, 0x00,
			0xD6, 0xBE, 0x89, 0x8E,
			ble.PDUTypeAdvNonconnInd,
			byte(6 + len(adData)),
			byte(6 + len(adData)),
		}
		for i := 5; i >= 0; i-- {
			payload = append(payload, mac[i])
		}
		payload = append(payload, adData...)
		content[1] = byte(len(payload))
		return slip.Encode(append(content, payload...))
	}

	var stream []byte
	stream = append(stream, frame(1,
		[6]byte{0xC0, 0xFF, 0xEE, 0x00, 0x11, 0x22}, 60,
		[]byte{0x02, 0x01, 0x06, 0x09, 0x09, 't', 'e', 's', 't', 'n', 'a', 'm', 'e'})...)
	stream = append(stream, frame(2,
		[6]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x01}, 72,
		[]byte{0x02, 0x01, 0x06, 0x05, 0xFF, 0x4C, 0x00, 0x01, 0x02})...)
	stream = append(stream, frame(3,
		[6]byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}, 85,
		[]byte{0x02, 0x0A, 0xFC})...)
	return stream
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("ble.report %s (%s) built %s, sniffer protocol %s\n",
			version.Version, version.GitSHA, version.BuildTime, version.SnifferProtocol)
		return
	}

	cfg := config.EmptySnifferConfig()
	if *configPath != "" {
		loaded, err := config.LoadSnifferConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}

	listenAddr := cfg.GetListen()
	if *listen != "" {
		listenAddr = *listen
	}
	serialPort := cfg.GetSerialPort()
	if *port != "" {
		serialPort = *port
	}
	databasePath := cfg.GetDBPath()
	if *dbPath != "" {
		databasePath = *dbPath
	}
	capturePath := cfg.GetCapturePath()
	if *pcapPath != "" {
		capturePath = *pcapPath
	}

	var mux serialmux.SerialMuxInterface
	switch {
	case *disableSniffer:
		mux = serialmux.NewDisabledSerialMux()
	case *devMode:
		mux = serialmux.NewMockSerialMux(devStream())
	default:
		opts := cfg.PortOptions()
		if *baud > 0 {
			opts.BaudRate = *baud
		}
		real, err := serialmux.NewRealSerialMux(serialPort, opts)
		if err != nil {
			log.Fatalf("failed to open serial port %s: %v", serialPort, err)
		}
		mux = real
	}
	defer mux.Close()

	if capturePath != "" {
		pcap, err := capture.NewWriter(capturePath)
		if err != nil {
			log.Fatalf("failed to open capture file: %v", err)
		}
		defer pcap.Close()
		mux.SetFrameTap(func(frame []byte) {
			if err := pcap.WriteFrame(frame); err != nil {
				log.Printf("capture write failed: %v", err)
			}
		})
		log.Printf("exporting frames to %s", capturePath)
	}

	if err := mux.Initialize(cfg.GetFindScanRsp(), cfg.GetFindAux(), cfg.GetScanCoded()); err != nil {
		log.Fatalf("failed to initialize sniffer: %v", err)
	}
	if err := mux.SetAdvHopSequence(cfg.GetHopSequence()); err != nil {
		log.Fatalf("failed to set hop sequence: %v", err)
	}

	database, err := db.NewDB(databasePath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	// Wait group for the monitor, recorder, and HTTP server routines.
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the monitor routine to manage IO on the serial port
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mux.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("monitor failed: %v", err)
			stop()
		}
		log.Print("monitor routine terminated")
	}()

	// subscribe to decoded packets and record them
	wg.Add(1)
	go func() {
		defer wg.Done()
		serialmux.RecordPackets(ctx, mux, database)
		log.Print("recorder routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		httpMux := api.NewServer(mux, database).ServeMux()
		mux.AttachAdminRoutes(httpMux)
		database.AttachAdminRoutes(httpMux)

		server := &http.Server{
			Addr:    listenAddr,
			Handler: api.LoggingMiddleware(httpMux),
		}

		go func() {
			log.Printf("listening on %s", listenAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server failed: %v", err)
				stop()
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Print("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Print("graceful shutdown complete")
}
