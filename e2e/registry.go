package e2e

import (
	"github.com/c-pro/geche"
)

// registry tracks running instances by executable path.
type registry struct {
	instances geche.Geche[string, *GoHookTest]
}

func newRegistry() *registry {
	return &registry{
		instances: geche.NewMapCache[string, *GoHookTest](),
	}
}

func (r *registry) add(t *GoHookTest) {
	r.instances.Set(t.exe, t)
}

func (r *registry) remove(t *GoHookTest) {
	_ = r.instances.Del(t.exe)
}

func (r *registry) tracks(exe string) bool {
	_, err := r.instances.Get(exe)
	return err == nil
}

func (r *registry) live() []*GoHookTest {
	snapshot := r.instances.Snapshot()
	list := make([]*GoHookTest, 0, len(snapshot))
	for _, t := range snapshot {
		list = append(list, t)
	}
	return list
}

func (r *registry) len() int {
	return r.instances.Len()
}
