package engine

type outcomeKind int

const (
	kindStay outcomeKind = iota
	kindAdvance
	kindGoto
	kindReenter
	kindEnter
	kindLeave
)

// Outcome — размеченный исход обработчика шага. Переходы между шагами
// выражаются именами, а не арифметикой индексов.
type Outcome struct {
	kind  outcomeKind
	step  string
	scene string
	args  any
}

// Stay оставляет сессию на текущем шаге.
func Stay() Outcome { return Outcome{kind: kindStay} }

// Advance переводит сессию на следующий шаг сцены.
func Advance() Outcome { return Outcome{kind: kindAdvance} }

// Goto переводит сессию на произвольный шаг по имени (в обе стороны).
func Goto(step string) Outcome { return Outcome{kind: kindGoto, step: step} }

// Reenter перезапускает входной шаг текущей сцены со сброшенным состоянием.
func Reenter() Outcome { return Outcome{kind: kindReenter} }

// Enter покидает текущую сцену и входит в другую с аргументами.
func Enter(scene string, args any) Outcome { return Outcome{kind: kindEnter, scene: scene, args: args} }

// Leave очищает активную сцену; профили и заказы не затрагиваются.
func Leave() Outcome { return Outcome{kind: kindLeave} }
