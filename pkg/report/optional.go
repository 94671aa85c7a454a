package report

// Optional 可选值：显式区分"存在"与"缺失"，不依赖零值或哨兵值
type Optional[T any] struct {
	value   T
	present bool
}

// Some 创建一个存在的可选值
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, present: true}
}

// None 创建一个缺失的可选值
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// OptionalOf 从 comma-ok 形式的解析结果创建可选值
func OptionalOf[T any](v T, ok bool) Optional[T] {
	if !ok {
		return None[T]()
	}
	return Some(v)
}

// fromPtr 从指针创建可选值，nil 视为缺失
func fromPtr[T any](p *T) Optional[T] {
	if p == nil {
		return None[T]()
	}
	return Some(*p)
}

// Get 返回值及其是否存在
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.present
}

// IsPresent 是否存在
func (o Optional[T]) IsPresent() bool {
	return o.present
}

// OrElse 存在时返回值，否则返回 fallback
func (o Optional[T]) OrElse(fallback T) T {
	if o.present {
		return o.value
	}
	return fallback
}

// ptr 转为指针，缺失时为 nil
func (o Optional[T]) ptr() *T {
	if !o.present {
		return nil
	}
	v := o.value
	return &v
}
