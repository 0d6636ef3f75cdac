package debugger

// StructuredValue 变量序列化后的结构化值，深度和元素数量都是有限的
// 只有下面四种实现
type StructuredValue interface {
	isStructuredValue()
}

const (
	BasicValueKind    = "basic"
	ObjectSummaryKind = "summary"
	ObjectFieldsKind  = "fields"
	ArraySummaryKind  = "array"
)

// BasicValue 基础类型的值，字面量展示
type BasicValue struct {
	Kind       string  `json:"kind"`
	ObjectType string  `json:"objectType"`
	Value      *string `json:"value"`
}

// ObjectSummary 只有摘要的对象，例如循环引用、超过最大深度
type ObjectSummary struct {
	Kind       string `json:"kind"`
	ObjectType string `json:"objectType"`
	Summary    string `json:"summary"`
}

// ObjectFields 展开了字段的对象
type ObjectFields struct {
	Kind       string                     `json:"kind"`
	ObjectType string                     `json:"objectType"`
	Fields     map[string]StructuredValue `json:"fields"`
}

// ArraySummary 数组摘要，只保留前几个元素
type ArraySummary struct {
	Kind          string   `json:"kind"`
	ObjectType    string   `json:"objectType"`
	Size          int      `json:"size"`
	FirstElements []string `json:"firstElements"`
}

func (*BasicValue) isStructuredValue()    {}
func (*ObjectSummary) isStructuredValue() {}
func (*ObjectFields) isStructuredValue()  {}
func (*ArraySummary) isStructuredValue()  {}

func NewBasicValue(objectType string, value *string) *BasicValue {
	return &BasicValue{Kind: BasicValueKind, ObjectType: objectType, Value: value}
}

func NewObjectSummary(objectType string, summary string) *ObjectSummary {
	return &ObjectSummary{Kind: ObjectSummaryKind, ObjectType: objectType, Summary: summary}
}

func NewObjectFields(objectType string, fields map[string]StructuredValue) *ObjectFields {
	return &ObjectFields{Kind: ObjectFieldsKind, ObjectType: objectType, Fields: fields}
}

func NewArraySummary(objectType string, size int, firstElements []string) *ArraySummary {
	return &ArraySummary{Kind: ArraySummaryKind, ObjectType: objectType, Size: size, FirstElements: firstElements}
}

// SerializedVariable 带名称的结构化变量
type SerializedVariable struct {
	Name  string          `json:"name"`
	Value StructuredValue `json:"value"`
}
