package artifacts

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"cloud.google.com/go/civil"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"rain-platform/internal/models"
	"rain-platform/pkg/logging"
)

// splitRecord is one row of an exported split in Parquet form
type splitRecord struct {
	Date                  string  `parquet:"name=date,type=BYTE_ARRAY,convertedtype=UTF8"`
	SurfacePressureAvg    float64 `parquet:"name=surface_pressure_avg,type=DOUBLE"`
	TemperatureAvg        float64 `parquet:"name=temperature_2m_avg,type=DOUBLE"`
	DailySunshine         float64 `parquet:"name=daily_sunshine,type=DOUBLE"`
	DailyEvapotranspirate float64 `parquet:"name=daily_et0_fao_evapotranspiration,type=DOUBLE"`
	RelativeHumidityAvg   float64 `parquet:"name=relative_humidity_2m_avg,type=DOUBLE"`
	CloudCoverAvg         float64 `parquet:"name=cloud_cover_avg,type=DOUBLE"`
	WindSpeedAvg          float64 `parquet:"name=wind_speed_10m_avg,type=DOUBLE"`
	WindDirSin            float64 `parquet:"name=wind_dir_sin,type=DOUBLE"`
	WindDirCos            float64 `parquet:"name=wind_dir_cos,type=DOUBLE"`
	Rain                  int32   `parquet:"name=rain,type=INT32"`
}

// ExportSplit writes name.csv and name.parquet for a transformed, labelled
// table. Rows keep the table's order.
func (s *Store) ExportSplit(ctx context.Context, name string, table *models.FeatureTable) error {
	if err := checkExportable(table); err != nil {
		return err
	}

	csvPath := s.SplitPath(name + ".csv")
	if err := WriteCSV(csvPath, table); err != nil {
		return err
	}
	parquetPath := s.SplitPath(name + ".parquet")
	if err := WriteParquet(parquetPath, table); err != nil {
		return err
	}

	s.logger.Info(ctx, "[ARTIFACTS_SPLIT_EXPORTED] Split written", logging.Fields{
		"split":   name,
		"rows":    table.Len(),
		"csv":     csvPath,
		"parquet": parquetPath,
	})
	return nil
}

// WriteCSV writes date, the table columns and the label when present
func WriteCSV(path string, table *models.FeatureTable) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := append([]string{models.DateColumn}, table.LabeledSchema()...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	record := make([]string, len(header))
	for i, row := range table.Values {
		record = record[:0]
		record = append(record, table.Dates[i].String())
		for _, v := range row {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		if table.Labels != nil {
			record = append(record, strconv.Itoa(table.Labels[i]))
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	return f.Close()
}

// ReadCSV reads a file written by WriteCSV. A trailing rain column becomes the labels.
func ReadCSV(path string) (*models.FeatureTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(records) == 0 || len(records[0]) < 1 || records[0][0] != models.DateColumn {
		return nil, &models.DataIntegrityError{Column: models.DateColumn, Message: fmt.Sprintf("%s has no date header", path)}
	}

	header := records[0][1:]
	labelled := len(header) > 0 && header[len(header)-1] == models.LabelColumn
	if labelled {
		header = header[:len(header)-1]
	}

	table := &models.FeatureTable{Columns: models.Schema(append([]string(nil), header...))}
	if labelled {
		table.Labels = make([]int, 0, len(records)-1)
	}

	for line, rec := range records[1:] {
		date, err := civil.ParseDate(rec[0])
		if err != nil {
			return nil, &models.DataIntegrityError{Column: models.DateColumn, Message: fmt.Sprintf("line %d: %v", line+2, err)}
		}
		values := make([]float64, len(header))
		for j := range header {
			v, err := strconv.ParseFloat(rec[j+1], 64)
			if err != nil {
				return nil, &models.DataIntegrityError{Date: date.String(), Column: header[j], Message: err.Error()}
			}
			values[j] = v
		}
		table.Dates = append(table.Dates, date)
		table.Values = append(table.Values, values)
		if labelled {
			label, err := strconv.Atoi(rec[len(rec)-1])
			if err != nil {
				return nil, &models.DataIntegrityError{Date: date.String(), Column: models.LabelColumn, Message: err.Error()}
			}
			table.Labels = append(table.Labels, label)
		}
	}
	return table, nil
}

// WriteParquet writes a predictor-schema table with labels as a SNAPPY
// compressed Parquet file
func WriteParquet(path string, table *models.FeatureTable) error {
	if err := checkExportable(table); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, new(splitRecord), 1)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, row := range table.Values {
		rec := splitRecord{
			Date:                  table.Dates[i].String(),
			SurfacePressureAvg:    row[0],
			TemperatureAvg:        row[1],
			DailySunshine:         row[2],
			DailyEvapotranspirate: row[3],
			RelativeHumidityAvg:   row[4],
			CloudCoverAvg:         row[5],
			WindSpeedAvg:          row[6],
			WindDirSin:            row[7],
			WindDirCos:            row[8],
			Rain:                  int32(table.Labels[i]),
		}
		if err := pw.Write(rec); err != nil {
			return fmt.Errorf("failed to write parquet row %d: %w", i, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func checkExportable(table *models.FeatureTable) error {
	if !table.Columns.Equal(models.PredictorSchema) {
		missing, extra := models.PredictorSchema.Diff(table.Columns)
		return models.NewSchemaMismatchError("export", missing, extra, len(missing) == 0 && len(extra) == 0)
	}
	if len(table.Labels) != table.Len() {
		return &models.DataIntegrityError{Column: models.LabelColumn, Message: "exported rows need labels"}
	}
	return nil
}
