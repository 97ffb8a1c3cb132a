package session

import "sort"

// MaxIDSetSize はセッションに保持するID集合の上限。
const MaxIDSetSize = 500

// IDSet は投稿IDの集合。正のIDのみを保持する。
type IDSet struct {
	ids map[int64]struct{}
}

// NewIDSet はIDの一覧から集合を生成する。0以下のIDは捨てる。
func NewIDSet(ids []int64) IDSet {
	s := IDSet{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Has はIDが含まれるかを返す。
func (s IDSet) Has(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

// Add はIDを追加する。0以下のIDは無視する。
func (s *IDSet) Add(id int64) {
	if id <= 0 {
		return
	}
	if s.ids == nil {
		s.ids = make(map[int64]struct{})
	}
	s.ids[id] = struct{}{}
}

// Remove はIDを取り除く。
func (s *IDSet) Remove(id int64) {
	delete(s.ids, id)
}

// Len は要素数を返す。
func (s IDSet) Len() int {
	return len(s.ids)
}

// Slice は降順に並べたIDを上限件数まで返す。
// 上限を超えた場合は小さいIDから切り捨てる。
func (s IDSet) Slice() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	if len(out) > MaxIDSetSize {
		out = out[:MaxIDSetSize]
	}
	return out
}
