// Package db stores decoded advertisements in sqlite and answers the queries
// behind the HTTP API: recent packets, per-device rollups, and counts.
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"

	"github.com/banshee-data/ble.report/internal/ble"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the sqlite database at path and brings the
// schema up to date.
func NewDB(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// WAL keeps the recorder goroutine from blocking API reads.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA foreign_keys = ON;",
	} {
		if _, err := sqldb.Exec(pragma); err != nil {
			sqldb.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	db := &DB{sqldb}
	if err := db.MigrateUp(); err != nil {
		sqldb.Close()
		return nil, err
	}
	return db, nil
}

// Advertisement is one recorded packet row. Nullable columns are pointer
// fields so JSON output omits what the packet did not carry.
type Advertisement struct {
	ID               int64     `json:"id"`
	Mac              string    `json:"mac"`
	PDUType          int       `json:"pdu_type"`
	Channel          int       `json:"channel"`
	RSSI             int       `json:"rssi"`
	CRCOK            bool      `json:"crc_ok"`
	PHY              int       `json:"phy"`
	PacketCounter    int       `json:"packet_counter"`
	Flags            *int64    `json:"flags,omitempty"`
	TxPower          *int64    `json:"tx_power,omitempty"`
	LocalName        *string   `json:"local_name,omitempty"`
	CompanyID        *int64    `json:"company_id,omitempty"`
	ManufacturerData []byte    `json:"manufacturer_data,omitempty"`
	RawFields        *string   `json:"raw_fields,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
}

// Device is the per-address rollup of everything recorded for one advertiser.
type Device struct {
	Mac       string    `json:"mac"`
	Packets   int64     `json:"packets"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	BestRSSI  int       `json:"best_rssi"`
	LocalName *string   `json:"local_name,omitempty"`
	CompanyID *int64    `json:"company_id,omitempty"`
}

// RecordPacket inserts one decoded packet. Packets without an advertising
// payload (data PDUs, scan requests) are recorded with header metadata only.
func (db *DB) RecordPacket(p *ble.Packet) error {
	var flags, txPower, companyID *int64
	var localName *string
	var mfgData []byte
	var rawFields *string

	if adv := p.Adv; adv != nil {
		if adv.Flags != nil {
			v := int64(*adv.Flags)
			flags = &v
		}
		if adv.TxPower != nil {
			v := int64(*adv.TxPower)
			txPower = &v
		}
		localName = adv.LocalName
		if id, ok := adv.ManufacturerID(); ok {
			v := int64(id)
			companyID = &v
		}
		if data, ok := adv.ManufacturerBytes(); ok {
			mfgData = data
		}
		if len(adv.RawFields) > 0 {
			encoded, err := json.Marshal(adv.RawFields)
			if err != nil {
				return fmt.Errorf("failed to encode raw fields: %w", err)
			}
			s := string(encoded)
			rawFields = &s
		}
	}

	_, err := db.Exec(`
		INSERT INTO advertisements (
			mac, pdu_type, channel, rssi, crc_ok, phy, packet_counter,
			flags, tx_power, local_name, company_id, manufacturer_data, raw_fields
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.MacString(), p.PDUType, p.Header.ChannelIndex, p.Header.RSSI,
		p.Header.CRCOK, p.Header.PHY, p.PacketCounter,
		flags, txPower, localName, companyID, mfgData, rawFields,
	)
	return err
}

// RecentPackets returns the most recent limit rows, newest first.
func (db *DB) RecentPackets(limit int) ([]Advertisement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, mac, pdu_type, channel, rssi, crc_ok, phy, packet_counter,
		       flags, tx_power, local_name, company_id, manufacturer_data, raw_fields, timestamp
		FROM advertisements
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Advertisement
	for rows.Next() {
		var a Advertisement
		if err := rows.Scan(
			&a.ID, &a.Mac, &a.PDUType, &a.Channel, &a.RSSI, &a.CRCOK, &a.PHY, &a.PacketCounter,
			&a.Flags, &a.TxPower, &a.LocalName, &a.CompanyID, &a.ManufacturerData, &a.RawFields, &a.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// PacketsForMac returns the recorded packets for one advertiser, oldest
// first, bounded by limit.
func (db *DB) PacketsForMac(mac string, limit int) ([]Advertisement, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := db.Query(`
		SELECT id, mac, pdu_type, channel, rssi, crc_ok, phy, packet_counter,
		       flags, tx_power, local_name, company_id, manufacturer_data, raw_fields, timestamp
		FROM advertisements
		WHERE mac = ?
		ORDER BY id ASC
		LIMIT ?`, mac, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Advertisement
	for rows.Next() {
		var a Advertisement
		if err := rows.Scan(
			&a.ID, &a.Mac, &a.PDUType, &a.Channel, &a.RSSI, &a.CRCOK, &a.PHY, &a.PacketCounter,
			&a.Flags, &a.TxPower, &a.LocalName, &a.CompanyID, &a.ManufacturerData, &a.RawFields, &a.Timestamp,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Devices returns one rollup row per advertiser address, most recently seen
// first.
func (db *DB) Devices() ([]Device, error) {
	rows, err := db.Query(`
		SELECT a.mac,
		       COUNT(*) AS packets,
		       MIN(a.timestamp) AS first_seen,
		       MAX(a.timestamp) AS last_seen,
		       MAX(a.rssi) AS best_rssi,
		       (SELECT local_name FROM advertisements n
		        WHERE n.mac = a.mac AND n.local_name IS NOT NULL
		        ORDER BY n.id DESC LIMIT 1) AS local_name,
		       (SELECT company_id FROM advertisements c
		        WHERE c.mac = a.mac AND c.company_id IS NOT NULL
		        ORDER BY c.id DESC LIMIT 1) AS company_id
		FROM advertisements a
		GROUP BY a.mac
		ORDER BY last_seen DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.Mac, &d.Packets, &d.FirstSeen, &d.LastSeen, &d.BestRSSI, &d.LocalName, &d.CompanyID); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PacketCount returns the total number of recorded packets.
func (db *DB) PacketCount() (int64, error) {
	var n int64
	err := db.QueryRow("SELECT COUNT(*) FROM advertisements").Scan(&n)
	return n, err
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://sniffer.db", db.DB, &tailsql.DBOptions{
		Label: "Sniffer DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		if _, err := io.Copy(w, backupFile); err != nil {
			log.Printf("Failed to send backup file: %v", err)
		}
	}))
}
