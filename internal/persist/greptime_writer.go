package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"skyarena/internal/telemetry"
)

const defaultGreptimePort = 4001

// greptimeClient is the subset of the ingester client the writer needs.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter mirrors the history streams into GreptimeDB tables.
type GreptimeDBWriter struct {
	client greptimeClient
	tables map[telemetry.Stream]string
	log    *slog.Logger
}

// GreptimeTables returns the table names used for each stream.
func GreptimeTables(prefix string) map[telemetry.Stream]string {
	if prefix == "" {
		prefix = "skyarena"
	}
	return map[telemetry.Stream]string{
		telemetry.StreamTelemetry: prefix + "_telemetry",
		telemetry.StreamLocks:     prefix + "_locks",
		telemetry.StreamKamikaze:  prefix + "_kamikaze",
	}
}

// NewGreptimeDBWriter connects to endpoint (host or host:port).
func NewGreptimeDBWriter(endpoint, database, prefix string, log *slog.Logger) (*GreptimeDBWriter, error) {
	if log == nil {
		log = slog.Default()
	}
	host, port := endpoint, defaultGreptimePort
	if h, p, err := net.SplitHostPort(endpoint); err == nil {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("greptime port %q: %w", p, err)
		}
		host, port = h, n
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	return &GreptimeDBWriter{client: client, tables: GreptimeTables(prefix), log: log}, nil
}

// Append inserts a single record.
func (w *GreptimeDBWriter) Append(ctx context.Context, rec telemetry.Record) error {
	return w.AppendBatch(ctx, []telemetry.Record{rec})
}

// AppendBatch groups records by stream and writes one table per stream.
func (w *GreptimeDBWriter) AppendBatch(ctx context.Context, recs []telemetry.Record) error {
	if len(recs) == 0 {
		return nil
	}
	byStream := make(map[telemetry.Stream]*table.Table)
	var order []*table.Table
	for _, rec := range recs {
		tbl, ok := byStream[rec.Stream()]
		if !ok {
			var err error
			tbl, err = w.newTable(rec.Stream())
			if err != nil {
				return err
			}
			byStream[rec.Stream()] = tbl
			order = append(order, tbl)
		}
		if err := addRow(tbl, rec); err != nil {
			return fmt.Errorf("greptime %s row: %w", rec.Stream(), err)
		}
	}
	if _, err := w.client.Write(ctx, order...); err != nil {
		w.log.Error("greptime write failed", "err", err)
		return err
	}
	w.log.Debug("greptime wrote rows", "rows", len(recs))
	return nil
}

func (w *GreptimeDBWriter) newTable(stream telemetry.Stream) (*table.Table, error) {
	tbl, err := table.New(w.tables[stream])
	if err != nil {
		return nil, err
	}
	type col struct {
		name string
		tag  bool
		typ  types.ColumnType
	}
	var cols []col
	switch stream {
	case telemetry.StreamTelemetry:
		cols = []col{
			{"team", true, types.INT64},
			{"lat", false, types.FLOAT64},
			{"lon", false, types.FLOAT64},
			{"alt", false, types.FLOAT64},
			{"speed", false, types.FLOAT64},
			{"battery", false, types.INT64},
			{"raw", false, types.STRING},
		}
	case telemetry.StreamLocks:
		cols = []col{
			{"source_team", true, types.INT64},
			{"target_team", true, types.INT64},
			{"autonomous", false, types.INT64},
			{"end_gps", false, types.STRING},
			{"target_rect", false, types.STRING},
		}
	case telemetry.StreamKamikaze:
		cols = []col{
			{"source_team", true, types.INT64},
			{"qr_text", false, types.STRING},
			{"start_gps", false, types.STRING},
			{"end_gps", false, types.STRING},
		}
	default:
		return nil, fmt.Errorf("unknown stream %q", stream)
	}
	for _, c := range cols {
		if c.tag {
			err = tbl.AddTagColumn(c.name, c.typ)
		} else {
			err = tbl.AddFieldColumn(c.name, c.typ)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND); err != nil {
		return nil, err
	}
	return tbl, nil
}

func jsonString(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func addRow(tbl *table.Table, rec telemetry.Record) error {
	ts := rec.ReceivedAt().UTC()
	switch r := rec.(type) {
	case telemetry.TelemetryRecord:
		return tbl.AddRow(int64(r.Team), r.Lat, r.Lon, r.Alt, r.Speed, int64(r.Battery), jsonString(r.Raw), ts)
	case telemetry.LockRecord:
		var rect any
		if r.TargetRect != nil {
			rect = r.TargetRect
		}
		return tbl.AddRow(int64(r.Source), int64(r.Target), int64(r.Autonomous), jsonString(r.End), jsonString(rect), ts)
	case telemetry.KamikazeRecord:
		source := int64(-1)
		if r.Source != nil {
			source = int64(*r.Source)
		}
		return tbl.AddRow(source, r.QR, jsonString(r.Start), jsonString(r.End), ts)
	default:
		return fmt.Errorf("unsupported record %T", rec)
	}
}
