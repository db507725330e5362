package report

import (
	"encoding/csv"
	"io"
	"strconv"
)

// 报表列头。
var header = []string{"Name", "Length", "Width", "Quantity", "Area (m²)"}

// Encode 以 CSV 写出报表（UTF-8，LF 换行，标准引号转义）：
//
//	Group,<prefix>
//	Name,Length,Width,Quantity,Area (m²)
//	<name>,<length>,<width>,<qty>,<area>
//	Subtotal,,,,<subtotal>
//
// 组之间以空行分隔；最后为 Total 行（存在分组时其前有空行）。
func Encode(w io.Writer, rep Report) error {
	cw := csv.NewWriter(w)
	for i, g := range rep.Groups {
		if i > 0 {
			if err := blank(cw, w); err != nil {
				return err
			}
		}
		recs := make([][]string, 0, len(g.Rows)+3)
		recs = append(recs, []string{"Group", g.Prefix}, header)
		for _, r := range g.Rows {
			recs = append(recs, []string{r.Name, r.Length, r.Width, strconv.Itoa(r.Quantity), FormatArea(r.Area)})
		}
		recs = append(recs, []string{"Subtotal", "", "", "", FormatArea(g.Subtotal)})
		if err := cw.WriteAll(recs); err != nil {
			return err
		}
	}
	if len(rep.Groups) > 0 {
		if err := blank(cw, w); err != nil {
			return err
		}
	}
	return cw.WriteAll([][]string{{"Total", "", "", "", FormatArea(rep.Total)}})
}

// blank 写入分隔空行；空行不属于任何记录，先冲刷 csv 缓冲再直接写底层。
func blank(cw *csv.Writer, w io.Writer) error {
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
