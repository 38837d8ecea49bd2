package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"hotel-rag-go/internal/model"
	"hotel-rag-go/pkg/log"

	"github.com/fsnotify/fsnotify"
)

// ReloadableRetriever 在运行期间原子地替换底层 Retriever。
type ReloadableRetriever struct {
	mu      sync.RWMutex
	current *generation
}

// generation 是一个 Retriever 实例及其进行中的检索。
type generation struct {
	retriever Retriever
	inflight  sync.WaitGroup
}

func NewReloadableRetriever(r Retriever) *ReloadableRetriever {
	return &ReloadableRetriever{current: &generation{retriever: r}}
}

func (r *ReloadableRetriever) Search(ctx context.Context, q model.RetrievalQuery) ([]model.Hotel, error) {
	r.mu.RLock()
	gen := r.current
	gen.inflight.Add(1)
	r.mu.RUnlock()
	defer gen.inflight.Done()
	return gen.retriever.Search(ctx, q)
}

// Swap 替换底层 Retriever。进行中的检索继续使用旧实例，
// 全部结束后旧实例若实现了 io.Closer 则被关闭。Swap 会等待到那时才返回。
func (r *ReloadableRetriever) Swap(next Retriever) {
	r.mu.Lock()
	old := r.current
	r.current = &generation{retriever: next}
	r.mu.Unlock()

	old.inflight.Wait()
	if c, ok := old.retriever.(io.Closer); ok {
		if err := c.Close(); err != nil {
			log.Warnw("[SeedWatcher] 关闭旧索引失败", "error", err)
		}
	}
}

// WatchSeedFile 监听种子文件，文件写入或被替换后调用 build 重建索引。
// 重建失败时保留旧索引。ctx 结束后停止监听。
func WatchSeedFile(ctx context.Context, path string, target *ReloadableRetriever, build func(context.Context) (Retriever, error)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听失败: %w", err)
	}
	// 监听所在目录，编辑器保存时常以 rename 替换原文件
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return fmt.Errorf("监听 %s 失败: %w", filepath.Dir(abs), err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				next, err := build(ctx)
				if err != nil {
					log.Warnw("[SeedWatcher] 重建本地索引失败，继续使用旧索引", "path", abs, "error", err)
					continue
				}
				target.Swap(next)
				log.Infow("[SeedWatcher] 本地索引已重建", "path", abs)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warnw("[SeedWatcher] 文件监听出错", "error", err)
			}
		}
	}()
	return nil
}
