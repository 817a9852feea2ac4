package export

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/wwfm/aggregate-cli/internal/model"
	"github.com/wwfm/aggregate-cli/internal/store"
)

// sheet names are capped at 31 characters by the xlsx format
const maxSheetName = 31

var titler = cases.Title(language.English)

// WriteXLSX writes an aggregation to an .xlsx workbook: an overview sheet
// with the pairing and metadata, then one sheet per aggregated field with
// Value/Count/Percentage/Source rows. Legacy non-distribution fields are
// skipped.
func WriteXLSX(agg *store.Aggregation, path string) error {
	if agg == nil {
		return eris.New("export: nil aggregation")
	}

	f := xlsx.NewFile()

	if err := writeOverview(f, agg); err != nil {
		return err
	}

	for _, name := range sortedFieldNames(agg.Fields) {
		d, ok := model.AsDistribution(agg.Fields[name])
		if !ok {
			zap.L().Warn("skipping non-distribution field in export", zap.String("field", name))
			continue
		}
		if err := writeField(f, name, d); err != nil {
			return err
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func writeOverview(f *xlsx.File, agg *store.Aggregation) error {
	sheet, err := f.AddSheet("Overview")
	if err != nil {
		return eris.Wrap(err, "export: add overview sheet")
	}

	rows := [][]string{
		{"Goal", agg.Pairing.GoalID},
		{"Solution", agg.Pairing.SolutionID},
		{"Variant", agg.Pairing.VariantID},
		{"Category", agg.Pairing.Category},
		{},
		{"Data source", agg.Metadata.DataSource},
		{"User ratings", fmt.Sprintf("%d", agg.Metadata.UserRatings)},
		{"AI enhanced", fmt.Sprintf("%t", agg.Metadata.AIEnhanced)},
		{"Confidence", fmt.Sprintf("%.2f", agg.Metadata.Confidence)},
	}
	if !agg.Metadata.GeneratedAt.IsZero() {
		rows = append(rows, []string{"Generated at", agg.Metadata.GeneratedAt.Format("2006-01-02 15:04:05 UTC")})
	}
	for _, r := range rows {
		addRow(sheet, r...)
	}
	return nil
}

func writeField(f *xlsx.File, name string, d model.Distribution) error {
	sheet, err := f.AddSheet(sheetName(name))
	if err != nil {
		return eris.Wrapf(err, "export: add sheet for %s", name)
	}

	addRow(sheet, "Mode", d.Mode)
	addRow(sheet, "Total reports", fmt.Sprintf("%d", d.TotalReports))
	addRow(sheet)
	addRow(sheet, "Value", "Count", "Percentage", "Source")
	for _, v := range d.Values {
		addRow(sheet, v.Value, fmt.Sprintf("%d", v.Count), fmt.Sprintf("%.2f", v.Percentage), v.Source)
	}
	return nil
}

// sheetName turns a snake_case field name into a titled sheet name that fits
// the xlsx limit.
func sheetName(field string) string {
	name := titler.String(strings.ReplaceAll(field, "_", " "))
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return name
}

func addRow(sheet *xlsx.Sheet, cells ...string) {
	row := sheet.AddRow()
	for _, c := range cells {
		row.AddCell().SetString(c)
	}
}

func sortedFieldNames(fields model.FieldMap) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
