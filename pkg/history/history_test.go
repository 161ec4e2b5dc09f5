package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"relaybot/pkg/config"
	"relaybot/pkg/logger"
	"relaybot/pkg/message"
	"relaybot/pkg/session"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
)

var target = session.Target{TargetFrom: "discord", TargetID: "123", SenderFrom: "discord", SenderID: "9"}

func readRecords(t *testing.T, path string) []Record {
	t.Helper()

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var records []Record
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record Record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		records = append(records, record)
	}
	require.NoError(t, scanner.Err())

	return records
}

func TestRecorderWritesOneLinePerChain(t *testing.T) {
	queue := make(chan string, 4)
	recorder, err := NewRecorder(t.TempDir(), WithQueue(queue), WithLogger(logger.Discard()))
	require.NoError(t, err)

	chain := message.NewChain(message.NewPlain("hello"), message.URL{URL: "https://example.com"})
	require.NoError(t, recorder.Record(context.Background(), target, chain))
	require.NoError(t, recorder.Record(context.Background(), target, message.Text("again")))

	recorder.Close()

	require.Len(t, queue, 1)
	path := <-queue
	require.True(t, strings.HasPrefix(filepath.Base(path), "discord_123_"))

	records := readRecords(t, path)
	require.Len(t, records, 2)
	require.Equal(t, "discord|123", records[0].Target)
	require.Equal(t, "discord|9", records[0].Sender)

	restored, err := message.DeserializeChain(records[0].Elements)
	require.NoError(t, err)
	require.Equal(t, chain.Elements(), restored.Elements())
}

func TestRecorderRotatesBySize(t *testing.T) {
	queue := make(chan string, 4)
	recorder, err := NewRecorder(t.TempDir(), WithQueue(queue), WithRotation(time.Hour, 1))
	require.NoError(t, err)

	require.NoError(t, recorder.Record(context.Background(), target, message.Text("one")))
	require.Len(t, queue, 1)

	require.NoError(t, recorder.Record(context.Background(), target, message.Text("two")))
	require.Len(t, queue, 2)

	first, second := <-queue, <-queue
	require.NotEqual(t, first, second)
	require.Len(t, readRecords(t, first), 1)
	require.Len(t, readRecords(t, second), 1)
}

func TestRecorderRotatesByAge(t *testing.T) {
	now := time.Date(2025, 12, 30, 10, 30, 0, 0, time.UTC)
	queue := make(chan string, 4)
	recorder, err := NewRecorder(t.TempDir(),
		WithQueue(queue),
		WithRotation(time.Hour, 1<<20),
		WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)

	require.NoError(t, recorder.Record(context.Background(), target, message.Text("one")))

	now = now.Add(59 * time.Minute)
	recorder.CheckRotation()
	require.Empty(t, queue)

	now = now.Add(time.Minute)
	recorder.CheckRotation()
	require.Len(t, queue, 1)
	require.Contains(t, filepath.Base(<-queue), "_20251230_103000_")
}

type fakePutter struct {
	failures int
	keys     []string
	bodies   []string
}

func (f *fakePutter) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("slow down")
	}

	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.keys = append(f.keys, *params.Key)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func writeArchive(t *testing.T, dir string, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o600))
	return path
}

func TestUploaderRetriesAndDeletes(t *testing.T) {
	putter := &fakePutter{failures: 2}
	uploader := newUploader(putter, config.S3Config{Bucket: "logs", Prefix: "/bot/", MaxRetries: 2, DeleteAfterUpload: true}, logger.Discard())
	uploader.delay = 0

	path := writeArchive(t, t.TempDir(), "discord_123_20251230_103000_ab12cd34.jsonl")
	require.NoError(t, uploader.Upload(context.Background(), path))

	require.Equal(t, []string{"bot/2025/12/30/discord/123/discord_123_20251230_103000_ab12cd34.jsonl"}, putter.keys)
	require.Equal(t, []string{"{}\n"}, putter.bodies)
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestUploaderGivesUpAfterRetries(t *testing.T) {
	putter := &fakePutter{failures: 5}
	uploader := newUploader(putter, config.S3Config{Bucket: "logs", MaxRetries: 1}, nil)
	uploader.delay = 0

	path := writeArchive(t, t.TempDir(), "twitch_stream_20251230_103000_ab12cd34.jsonl")
	require.Error(t, uploader.Upload(context.Background(), path))
	require.Equal(t, 3, putter.failures)

	_, err := os.Stat(path)
	require.NoError(t, err)
}

func TestUploadExistingSkipsOpenFiles(t *testing.T) {
	dir := t.TempDir()
	closed := writeArchive(t, dir, "discord_1_20251230_103000_aaaaaaaa.jsonl")
	open := writeArchive(t, dir, "discord_2_20251230_103000_bbbbbbbb.jsonl")
	writeArchive(t, dir, "notes.txt")

	putter := &fakePutter{}
	uploader := newUploader(putter, config.S3Config{Bucket: "logs"}, nil)

	count, err := uploader.UploadExisting(context.Background(), dir, map[string]bool{open: true})
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Len(t, putter.keys, 1)
	require.True(t, strings.HasSuffix(putter.keys[0], filepath.Base(closed)))
}

func TestObjectKeyRejectsForeignNames(t *testing.T) {
	_, err := objectKey("", "random.jsonl")
	require.Error(t, err)

	key, err := objectKey("", "console_local_20240305_040709_0badf00d.jsonl")
	require.NoError(t, err)
	require.Equal(t, "2024/03/05/console/local/console_local_20240305_040709_0badf00d.jsonl", key)
}
