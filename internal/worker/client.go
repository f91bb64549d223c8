package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/UnendingLoop/PhotoReview/internal/model"
	"github.com/UnendingLoop/PhotoReview/internal/transport"
)

var errUnauthorized = errors.New("api rejected the token")

// Task - одна выдача задачи, как ее видит воркер
type Task struct {
	JobID     uint64
	DrawIndex int
	Image     []byte
	CType     string
	Meta      model.JobMeta
}

// APIClient talks to the review API over HTTP with a bearer token
type APIClient struct {
	base     string
	password string
	http     *http.Client

	mu    sync.Mutex
	token string
}

func NewAPIClient(baseURL, password string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIClient{
		base:     strings.TrimRight(baseURL, "/"),
		password: password,
		http:     &http.Client{Timeout: timeout},
	}
}

func (c *APIClient) Login(ctx context.Context) error {
	form := url.Values{"password": {c.password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request token: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request token: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("decode token: %w", err)
	}
	if body.AccessToken == "" {
		return errors.New("empty token received")
	}

	c.mu.Lock()
	c.token = body.AccessToken
	c.mu.Unlock()
	return nil
}

// FetchTask returns nil without error when the queue is empty
func (c *APIClient) FetchTask(ctx context.Context) (*Task, error) {
	var task *Task
	err := c.authorized(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/job", nil)
		if err != nil {
			return err
		}
		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer closeBody(resp)

		switch resp.StatusCode {
		case http.StatusNoContent:
			task = nil
			return nil
		case http.StatusOK:
		default:
			return fmt.Errorf("fetch job: unexpected status %d", resp.StatusCode)
		}

		task, err = parseTask(resp)
		return err
	})
	return task, err
}

func (c *APIClient) SubmitResult(ctx context.Context, jobID uint64, data []byte, ctype string) error {
	return c.authorized(ctx, func() error {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		if err := mw.WriteField("image_id", strconv.FormatUint(jobID, 10)); err != nil {
			return err
		}
		fw, err := mw.CreateFormFile("result", "result"+model.GetImageFileExt[ctype])
		if err != nil {
			return err
		}
		if _, err := fw.Write(data); err != nil {
			return err
		}
		if err := mw.Close(); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/job", &buf)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())

		resp, err := c.do(req)
		if err != nil {
			return err
		}
		defer closeBody(resp)

		switch resp.StatusCode {
		case http.StatusOK:
			return nil
		case http.StatusNotFound:
			// задачу уже закрыли другими результатами
			return model.ErrUnknownJob
		default:
			return fmt.Errorf("submit result: unexpected status %d", resp.StatusCode)
		}
	})
}

// authorized повторяет вызов один раз после перелогина, если токен протух
func (c *APIClient) authorized(ctx context.Context, call func() error) error {
	err := call()
	if !errors.Is(err, errUnauthorized) {
		return err
	}
	if err := c.Login(ctx); err != nil {
		return err
	}
	return call()
}

func (c *APIClient) do(req *http.Request) (*http.Response, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		closeBody(resp)
		return nil, errUnauthorized
	}
	return resp, nil
}

func parseTask(resp *http.Response) (*Task, error) {
	id, err := strconv.ParseUint(resp.Header.Get(transport.HeaderJobID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad %s header: %w", transport.HeaderJobID, err)
	}
	drawIndex, err := strconv.Atoi(resp.Header.Get(transport.HeaderDrawIndex))
	if err != nil {
		drawIndex = 0
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read job image: %w", err)
	}

	return &Task{
		JobID:     id,
		DrawIndex: drawIndex,
		Image:     data,
		CType:     resp.Header.Get("Content-Type"),
		Meta: model.JobMeta{
			FirstName:   resp.Header.Get(transport.HeaderFirstName),
			LastName:    resp.Header.Get(transport.HeaderLastName),
			SubjectName: resp.Header.Get(transport.HeaderSubjectName),
			Category:    resp.Header.Get(transport.HeaderCategory),
		},
	}, nil
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	closeFileFlow(resp.Body)
}
