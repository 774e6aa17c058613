package store

import "sync"

// EditBuffer 未保存编辑缓冲
// 键为 (childKey, 疫苗标签)，childKey 是 "regNo|name" 形式的稳定代理键。
// 值是尚未提交的接种日期字符串。只存在于进程内，永不落库：
// 保存成功或显式放弃时整组清除。
type EditBuffer interface {
	// TrackEdit 记录（或覆盖）一条未提交的日期编辑
	TrackEdit(childKey, vaccine, value string)

	// Get 读取单条未提交编辑；第二个返回值表示是否存在
	Get(childKey, vaccine string) (string, bool)

	// ForChild 返回某儿童的全部未提交编辑（疫苗标签 -> 日期）
	ForChild(childKey string) map[string]string

	// Clear 保存成功或放弃后清除该儿童的整组编辑
	Clear(childKey string)
}

// MemoryEditBuffer 进程内实现（主控制流单写，读写锁足够）
type MemoryEditBuffer struct {
	mu    sync.RWMutex
	edits map[string]map[string]string // childKey -> vaccine -> date value
}

// NewMemoryEditBuffer 创建编辑缓冲
func NewMemoryEditBuffer() *MemoryEditBuffer {
	return &MemoryEditBuffer{edits: map[string]map[string]string{}}
}

var _ EditBuffer = (*MemoryEditBuffer)(nil)

func (b *MemoryEditBuffer) TrackEdit(childKey, vaccine, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub, ok := b.edits[childKey]
	if !ok {
		sub = map[string]string{}
		b.edits[childKey] = sub
	}
	sub[vaccine] = value
}

func (b *MemoryEditBuffer) Get(childKey, vaccine string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sub, ok := b.edits[childKey]
	if !ok {
		return "", false
	}
	v, ok := sub[vaccine]
	return v, ok
}

func (b *MemoryEditBuffer) ForChild(childKey string) map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	sub, ok := b.edits[childKey]
	if !ok {
		return map[string]string{}
	}
	out := make(map[string]string, len(sub))
	for k, v := range sub {
		out[k] = v
	}
	return out
}

func (b *MemoryEditBuffer) Clear(childKey string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.edits, childKey)
}
