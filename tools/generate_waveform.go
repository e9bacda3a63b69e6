package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/dinanjanan/cryostat-probe/internal/waveform"
)

func main() {
	low := flag.Float64("min", -0.1, "最小磁场 (T)")
	high := flag.Float64("max", 0.1, "最大磁场 (T)")
	step := flag.Float64("step", 0.01, "磁场步长 (T)")
	topology := flag.String("type", "B1", "扫场类型 (B1, B2, B3)")
	format := flag.String("format", "table", "输出格式 (table, csv, json)")
	flag.Parse()

	t, err := waveform.ParseTopology(strings.ToUpper(*topology))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	w, err := waveform.Generate(*low, *high, *step, t)
	if err != nil {
		fmt.Fprintf(os.Stderr, "生成波形失败: %v\n", err)
		os.Exit(1)
	}

	switch *format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string][]float64{
			"pre_passover":  w.PrePassover,
			"sweep":         w.Sweep,
			"post_passover": w.PostPassover,
		})
	case "csv":
		fmt.Println("segment,index,field_t")
		printCSV("pre", w.PrePassover)
		printCSV("sweep", w.Sweep)
		printCSV("post", w.PostPassover)
	default:
		fmt.Printf("扫场类型: %s  范围: [%g, %g] T  步长: %g T\n", t, *low, *high, *step)
		fmt.Printf("  预行程: %d 点\n", len(w.PrePassover))
		fmt.Printf("  测量段: %d 点\n", len(w.Sweep))
		fmt.Printf("  回程:   %d 点\n", len(w.PostPassover))
		fmt.Printf("  总计:   %d 点\n", w.Len())
		printTable(w.Sweep)
	}
}

func printCSV(segment string, points []float64) {
	for i, b := range points {
		fmt.Printf("%s,%d,%.6f\n", segment, i, b)
	}
}

// printTable 每行 8 个点
func printTable(points []float64) {
	for i, b := range points {
		if i%8 == 0 {
			fmt.Printf("\n  %4d:", i)
		}
		fmt.Printf(" %+8.4f", b)
	}
	fmt.Println()
}
