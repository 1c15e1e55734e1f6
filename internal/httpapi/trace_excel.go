package httpapi

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"shopfloor/internal/trace"

	"github.com/xuri/excelize/v2"
)

// TraceExportHeader 批次追溯导出表头
var TraceExportHeader = []string{
	"Seq",
	"Kind",
	"Timestamp",
	"From Stage",
	"To Stage",
	"Qty Good",
	"Qty Rejected",
	"Operator",
	"Machine",
	"Shift",
	"Cost Type",
	"Amount",
	"Source Ref",
}

// GenerateTraceExport 生成批次追溯 Excel 文件
func GenerateTraceExport(res *trace.Result) ([]byte, error) {
	f := excelize.NewFile()
	// Note: Don't defer Close() here, because WriteTo needs the file to be open

	sheetName := "Trace"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, title := range TraceExportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}
	endCell, _ := excelize.CoordinatesToCellName(len(TraceExportHeader), 1)
	_ = f.SetCellStyle(sheetName, "A1", endCell, headerStyle)

	for i, rec := range res.Records {
		row := make([]any, len(TraceExportHeader))
		row[0] = i + 1
		row[1] = rec.Kind
		row[2] = rec.Timestamp.UTC().Format(time.RFC3339)
		switch rec.Kind {
		case "transition":
			row[3] = rec.Transition.FromStageID
			row[4] = rec.Transition.ToStageID
			row[5] = rec.Transition.QtyGood
			row[6] = rec.Transition.QtyRejected
			row[7] = rec.Transition.OperatorID
			row[8] = rec.Transition.MachineID
			row[9] = rec.Transition.Shift
		case "cost":
			row[10] = rec.Cost.CostType
			row[11] = rec.Cost.Amount
			row[12] = rec.Cost.SourceRef
		}
		start, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetName, start, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %s: %w", strconv.Itoa(i+2), err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	f.Close()
	return buf.Bytes(), nil
}
