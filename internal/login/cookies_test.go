package login

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/WxSpider/internal/models"
)

func TestCookieWriter_Persist(t *testing.T) {
	dir := t.TempDir()
	w := NewCookieWriter(filepath.Join(dir, "cookies"))
	fixed := time.Date(2025, 3, 14, 9, 26, 53, 0, time.Local)
	w.now = func() time.Time { return fixed }

	cookies := map[string]string{"UserCookieName": "abc", "token": "xyz"}
	bundle := models.NewCookieBundle(cookies, "tester", fixed)

	archive, err := w.Persist(bundle)
	if err != nil {
		t.Fatalf("Persist 失败: %v", err)
	}

	if filepath.Base(archive) != "cookies_20250314_092653.json" {
		t.Errorf("归档文件名 = %s", filepath.Base(archive))
	}

	t.Run("归档与latest内容一致", func(t *testing.T) {
		a, err := os.ReadFile(archive)
		if err != nil {
			t.Fatal(err)
		}
		l, err := os.ReadFile(w.LatestPath())
		if err != nil {
			t.Fatal(err)
		}
		if string(a) != string(l) {
			t.Error("归档文件与latest文件内容不同")
		}
	})

	t.Run("latest可加载", func(t *testing.T) {
		loaded, err := models.LoadCookieBundle(w.LatestPath())
		if err != nil {
			t.Fatal(err)
		}
		if loaded.Metadata.Count != 2 {
			t.Errorf("count = %d, 期望 2", loaded.Metadata.Count)
		}
		if loaded.Metadata.Count != len(loaded.Cookies) {
			t.Error("count 应等于cookie数量")
		}
		if loaded.Metadata.Username != "tester" {
			t.Errorf("username = %s", loaded.Metadata.Username)
		}
		if loaded.Cookies["token"] != "xyz" {
			t.Errorf("token = %s", loaded.Cookies["token"])
		}
	})

	t.Run("不残留临时文件", func(t *testing.T) {
		if _, err := os.Stat(w.LatestPath() + ".tmp"); !os.IsNotExist(err) {
			t.Error("临时文件应已被改名")
		}
	})
}

func TestCookieWriter_SameSecond(t *testing.T) {
	w := NewCookieWriter(t.TempDir())
	fixed := time.Date(2025, 3, 14, 9, 26, 53, 0, time.Local)
	w.now = func() time.Time { return fixed }

	first := models.NewCookieBundle(map[string]string{"a": "1"}, "u", fixed)
	second := models.NewCookieBundle(map[string]string{"a": "2", "b": "3"}, "u", fixed)

	p1, err := w.Persist(first)
	if err != nil {
		t.Fatal(err)
	}
	p2, err := w.Persist(second)
	if err != nil {
		t.Fatal(err)
	}

	if p1 == p2 {
		t.Fatal("同一秒内两次保存不应覆盖归档文件")
	}
	if filepath.Base(p2) != "cookies_20250314_092653_1.json" {
		t.Errorf("第二个归档文件名 = %s", filepath.Base(p2))
	}

	// latest 指向最后一次
	latest, err := models.LoadCookieBundle(w.LatestPath())
	if err != nil {
		t.Fatal(err)
	}
	if latest.Metadata.Count != 2 {
		t.Errorf("latest count = %d, 期望 2", latest.Metadata.Count)
	}

	// 第一个归档保持不变
	old, err := models.LoadCookieBundle(p1)
	if err != nil {
		t.Fatal(err)
	}
	if old.Cookies["a"] != "1" {
		t.Errorf("第一个归档被修改: %v", old.Cookies)
	}
}
