package dap_debugger

import (
	"github.com/emirpasic/gods/maps/linkedhashmap"
	. "github.com/fansqz/auto-debugger/debugger"
	dutils "github.com/fansqz/auto-debugger/debugger/utils"
	"github.com/fansqz/auto-debugger/utils"
)

// breakpointRegistry
// DAP的setBreakpoints是按文件整体替换的，所以需要在本地维护所有断点
// 禁用的断点保留在本地，只是不发送给适配器
// 非并发安全，由DapDebugger的breakpointLock保护
type breakpointRegistry struct {
	// breakpoints 断点id -> *Breakpoint，保持插入顺序
	breakpoints *linkedhashmap.Map
	// adapterIDs 适配器分配的id -> 断点id
	adapterIDs map[int]string
}

func newBreakpointRegistry() *breakpointRegistry {
	return &breakpointRegistry{
		breakpoints: linkedhashmap.New(),
		adapterIDs:  make(map[int]string),
	}
}

func (r *breakpointRegistry) add(breakpoint *Breakpoint) *Breakpoint {
	bp := breakpoint.Clone()
	bp.ID = utils.GetShortID()
	bp.Verified = false
	r.breakpoints.Put(bp.ID, bp)
	return bp
}

func (r *breakpointRegistry) get(id string) (*Breakpoint, bool) {
	value, ok := r.breakpoints.Get(id)
	if !ok {
		return nil, false
	}
	return value.(*Breakpoint), true
}

func (r *breakpointRegistry) remove(id string) {
	r.breakpoints.Remove(id)
	for adapterID, bpID := range r.adapterIDs {
		if bpID == id {
			delete(r.adapterIDs, adapterID)
		}
	}
}

func (r *breakpointRegistry) all() []*Breakpoint {
	answer := make([]*Breakpoint, 0, r.breakpoints.Size())
	it := r.breakpoints.Iterator()
	for it.Next() {
		answer = append(answer, it.Value().(*Breakpoint))
	}
	return answer
}

// enabledInFile 某个文件中所有启用的断点，按插入顺序
func (r *breakpointRegistry) enabledInFile(file string) []*Breakpoint {
	var answer []*Breakpoint
	for _, bp := range r.all() {
		if bp.Enabled && dutils.SameFile(bp.File, file) {
			answer = append(answer, bp)
		}
	}
	return answer
}

// bindAdapterID 记录适配器返回的断点id
func (r *breakpointRegistry) bindAdapterID(adapterID int, id string) {
	if adapterID == 0 {
		return
	}
	r.adapterIDs[adapterID] = id
}

// translate 将适配器的断点id转换为本地断点id
func (r *breakpointRegistry) translate(adapterIDs []int) []string {
	var answer []string
	for _, adapterID := range adapterIDs {
		if id, ok := r.adapterIDs[adapterID]; ok {
			answer = append(answer, id)
		}
	}
	return answer
}

// at 某个位置上启用的断点
func (r *breakpointRegistry) at(file string, line int) []string {
	var answer []string
	for _, bp := range r.all() {
		if bp.Enabled && bp.Line == line && dutils.SameFile(bp.File, file) {
			answer = append(answer, bp.ID)
		}
	}
	return answer
}
