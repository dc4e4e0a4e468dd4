package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/RecoveryAshes/WxSpider/internal/models"
)

func TestCSVSink_HeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed", "news.csv")
	ctx := context.Background()

	batches := []*models.FeedRow{
		{Title: "第一条", TitleURL: "https://news.163.com/a", Time: "2024-01-01"},
		{Title: "第二条", TitleURL: "https://news.163.com/b", Time: "2024-01-02"},
	}
	for _, row := range batches {
		sink, err := NewCSVSink(path)
		if err != nil {
			t.Fatal(err)
		}
		rows := []*models.FeedRow{row}
		n, err := sink.WriteRows(ctx, rows)
		if err != nil || n != 1 {
			t.Fatalf("WriteRows = %d, %v", n, err)
		}
		if err := sink.Close(); err != nil {
			t.Fatal(err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Fatalf("行数 = %d, 期望 3 (表头 + 2行)", len(records))
	}
	if records[0][0] != "title" || records[0][1] != "title_url" || records[0][2] != "time" {
		t.Errorf("表头 = %v", records[0])
	}
	if records[2][0] != "第二条" || records[2][2] != "2024-01-02" {
		t.Errorf("第二行 = %v", records[2])
	}
}
