package captcha

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeServer 模拟打码平台,记录收到的表单
type fakeServer struct {
	mu     sync.Mutex
	forms  []map[string]string
	files  map[string][]byte
	reply  string
	delay  time.Duration
	server *httptest.Server
}

func newFakeServer(t *testing.T, reply string) *fakeServer {
	fs := &fakeServer{reply: reply, files: make(map[string][]byte)}
	fs.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fs.delay > 0 {
			time.Sleep(fs.delay)
		}

		form := map[string]string{
			"_path":       r.URL.Path,
			"_ua":         r.Header.Get("User-Agent"),
			"_connection": r.Header.Get("Connection"),
		}
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			for k, v := range r.MultipartForm.Value {
				form[k] = v[0]
			}
			for k, headers := range r.MultipartForm.File {
				f, _ := headers[0].Open()
				data, _ := io.ReadAll(f)
				f.Close()
				fs.mu.Lock()
				fs.files[k] = data
				fs.mu.Unlock()
				form["_filename"] = headers[0].Filename
			}
		} else {
			_ = r.ParseForm()
			for k, v := range r.PostForm {
				form[k] = v[0]
			}
		}

		fs.mu.Lock()
		fs.forms = append(fs.forms, form)
		fs.mu.Unlock()

		fmt.Fprint(w, fs.reply)
	}))
	t.Cleanup(fs.server.Close)
	return fs
}

func (fs *fakeServer) lastForm() map[string]string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.forms[len(fs.forms)-1]
}

func newTestClient(fs *fakeServer) *Client {
	return NewClient(Config{
		Username:  "user1",
		Password:  "secret",
		SoftID:    "96001",
		UploadURL: fs.server.URL + "/Upload/Processing.php",
		ReportURL: fs.server.URL + "/Upload/ReportError.php",
	})
}

func TestClient_SolveMultipart(t *testing.T) {
	fs := newFakeServer(t, `{"err_no":0,"err_str":"OK","pic_id":"9160","pic_str":" a7Kd ","md5":"x"}`)
	c := newTestClient(fs)

	text, id, err := c.Solve(context.Background(), []byte("PNGDATA"))
	if err != nil {
		t.Fatalf("Solve() error = %v", err)
	}
	if text != "a7Kd" || id != "9160" {
		t.Errorf("Solve() = (%q, %q)", text, id)
	}

	sum := md5.Sum([]byte("secret"))
	form := fs.lastForm()
	checks := map[string]string{
		"user":        "user1",
		"pass2":       hex.EncodeToString(sum[:]),
		"softid":      "96001",
		"codetype":    DefaultCodeType,
		"_filename":   "captcha.jpg",
		"_path":       "/Upload/Processing.php",
		"_ua":         clientUserAgent,
		"_connection": "Keep-Alive",
	}
	for k, want := range checks {
		if form[k] != want {
			t.Errorf("表单字段 %s = %q, want %q", k, form[k], want)
		}
	}
	if string(fs.files["userfile"]) != "PNGDATA" {
		t.Errorf("上传图片内容不一致: %q", fs.files["userfile"])
	}
}

func TestClient_SolveFailures(t *testing.T) {
	t.Run("平台返回错误码", func(t *testing.T) {
		fs := newFakeServer(t, `{"err_no":-1005,"err_str":"无可用题分","pic_id":"","pic_str":""}`)
		_, _, err := newTestClient(fs).Solve(context.Background(), []byte("x"))

		var se *SolverError
		if !errors.As(err, &se) || se.Code != -1005 {
			t.Fatalf("期望SolverError(-1005), 实际: %v", err)
		}
	})

	t.Run("识别文本为空", func(t *testing.T) {
		fs := newFakeServer(t, `{"err_no":0,"err_str":"OK","pic_id":"1","pic_str":"  "}`)
		_, id, err := newTestClient(fs).Solve(context.Background(), []byte("x"))
		if !errors.Is(err, ErrEmptyResult) {
			t.Fatalf("期望ErrEmptyResult, 实际: %v", err)
		}
		if id != "1" {
			t.Errorf("空结果仍应返回pic_id, 实际: %q", id)
		}
	})

	t.Run("响应不是JSON", func(t *testing.T) {
		fs := newFakeServer(t, `<html>502</html>`)
		_, _, err := newTestClient(fs).Solve(context.Background(), []byte("x"))

		var se *SolverError
		if !errors.As(err, &se) || se.Code != CodeOther {
			t.Fatalf("期望SolverError(-1), 实际: %v", err)
		}
	})

	t.Run("请求超时", func(t *testing.T) {
		fs := newFakeServer(t, `{"err_no":0}`)
		fs.delay = 200 * time.Millisecond
		c := newTestClient(fs)
		c.httpClient.Timeout = 20 * time.Millisecond

		_, _, err := c.Solve(context.Background(), []byte("x"))
		var se *SolverError
		if !errors.As(err, &se) || !se.Timeout() {
			t.Fatalf("期望超时错误(-4), 实际: %v", err)
		}
	})
}

func TestClient_RecognizeFile(t *testing.T) {
	fs := newFakeServer(t, `{"err_no":0,"pic_id":"2","pic_str":"abcd"}`)
	c := newTestClient(fs)

	_, err := c.RecognizeFile(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"))
	var se *SolverError
	if !errors.As(err, &se) || se.Code != CodeFileNotFound {
		t.Fatalf("期望文件不存在错误(-2), 实际: %v", err)
	}

	_, err = c.RecognizeFile(context.Background(), t.TempDir())
	if !errors.As(err, &se) || se.Code != CodeReadFailed {
		t.Fatalf("期望读取失败错误(-3), 实际: %v", err)
	}
}

func TestClient_RecognizeBase64(t *testing.T) {
	fs := newFakeServer(t, `{"err_no":0,"pic_id":"3","pic_str":"wxyz"}`)
	res, err := newTestClient(fs).RecognizeBase64(context.Background(), "aGVsbG8=")
	if err != nil {
		t.Fatalf("RecognizeBase64() error = %v", err)
	}
	if res.PicStr != "wxyz" {
		t.Errorf("PicStr = %q", res.PicStr)
	}
	if fs.lastForm()["file_base64"] != "aGVsbG8=" {
		t.Errorf("file_base64字段缺失: %v", fs.lastForm())
	}
}

func TestClient_ReportError(t *testing.T) {
	fs := newFakeServer(t, `{"err_no":0,"err_str":"OK"}`)
	c := newTestClient(fs)

	if err := c.ReportError(context.Background(), "9160"); err != nil {
		t.Fatalf("ReportError() error = %v", err)
	}
	form := fs.lastForm()
	if form["_path"] != "/Upload/ReportError.php" || form["id"] != "9160" {
		t.Errorf("报错请求不正确: %v", form)
	}

	before := len(fs.forms)
	if err := c.ReportError(context.Background(), ""); err != nil {
		t.Fatalf("空ID应直接返回: %v", err)
	}
	if len(fs.forms) != before {
		t.Error("空ID不应发送请求")
	}
}
