package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"linefollower-robot/internal/event"
	"os"
	"sync"
)

// Entry 代表日志文件中的一条记录
type Entry struct {
	Timestamp int64  `json:"ts"`   // 事件的单调毫秒时间戳
	Kind      string `json:"kind"` // 事件类型，例如 SENSOR / LINE_STATUS
	Text      string `json:"text"` // 对外发送的文本
}

// Journal 是只追加的运行记录，每行一个 JSON 对象
// Enqueue 只放入内存缓冲，Flush 每个 tick 写一次文件。
type Journal struct {
	file    *os.File
	out     io.Writer
	mu      sync.Mutex
	pending []Entry
	torn    bool // 上次写入在一行中间失败
}

// Open 创建或打开一个日志文件
func Open(path string) (*Journal, error) {
	// O_APPEND: 追加写入, O_CREATE: 文件不存在则创建
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("打开运行记录 %s 失败: %w", path, err)
	}
	return &Journal{file: file, out: file}, nil
}

// Enqueue 记录一个对外发送的事件
func (j *Journal) Enqueue(e event.Exposable) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pending = append(j.pending, Entry{Timestamp: e.Timestamp(), Kind: e.Kind(), Text: e.Expose()})
}

// Flush 把缓冲的记录写入文件
func (j *Journal) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if len(j.pending) == 0 {
		return nil
	}

	var buf bytes.Buffer
	prefix := 0
	if j.torn {
		prefix = 1
		// 结束写了一半的行，Read 会跳过它
		buf.WriteByte('\n')
	}
	ends := make([]int, len(j.pending))
	for i, entry := range j.pending {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		buf.Write(data)
		buf.WriteByte('\n')
		ends[i] = buf.Len()
	}

	n, err := j.out.Write(buf.Bytes())
	if err == nil {
		j.pending = j.pending[:0]
		j.torn = false
		return nil
	}
	// 只保留没有完整写出的记录
	done := 0
	for done < len(ends) && ends[done] <= n {
		done++
	}
	start := prefix
	if done > 0 {
		start = ends[done-1]
	}
	j.torn = n != start
	j.pending = append(j.pending[:0], j.pending[done:]...)
	return fmt.Errorf("写入运行记录失败: %w", err)
}

// Close 写出剩余记录并关闭文件
func (j *Journal) Close() error {
	flushErr := j.Flush()
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.file.Sync(); err != nil && flushErr == nil {
		flushErr = err
	}
	if err := j.file.Close(); err != nil {
		return err
	}
	return flushErr
}

// Read 读取一个运行记录文件中的所有记录，损坏的行会被跳过
func Read(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			// 忽略损坏的行
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
