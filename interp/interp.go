package interp

import (
	"github.com/wippyai/clrvm/cil"
	"github.com/wippyai/clrvm/errors"
	"github.com/wippyai/clrvm/metadata"
	"github.com/wippyai/clrvm/stack"
	"go.uber.org/zap"
)

// AssemblyLoader resolves an assembly by module name, the pluggable
// collaborator spec.md §4.G/§6.5 delegates filesystem search to. The
// default implementation (a filesystem search under one or more roots)
// lives in cmd/clrvm, not here.
type AssemblyLoader func(name string) (*metadata.Assembly, error)

// BreakHook is invoked on brk. cmd/clrvm wires this to the step debugger
// in the debug package when -i is passed; it is nil (no-op) otherwise.
type BreakHook func(*Runtime, *Frame)

// defaultStackCapacity is used when New is given a non-positive capacity.
// Run keeps that stack when the image's SizeOfStackReserve is zero; any
// nonzero reserve, however small, is used as the capacity as-is.
const defaultStackCapacity = 1 << 20

// Runtime is the interpreter core of spec.md §4.G: the shared evaluation
// stack, heap, static-field store, and assembly registry that every
// active frame executes against.
type Runtime struct {
	assemblies map[string]*metadata.Assembly
	order      []string // insertion order, per spec.md §4.G's registry
	loaders    []AssemblyLoader

	stack   *stack.Stack
	heap    *Heap
	statics *StaticStore

	breakHook BreakHook
	aborted   bool
}

// New returns a Runtime with a stack of the given byte capacity. Run
// replaces that stack with one sized from the assembly's own header when
// the header declares a nonzero SizeOfStackReserve.
func New(stackCapacity int) *Runtime {
	if stackCapacity <= 0 {
		stackCapacity = defaultStackCapacity
	}
	return &Runtime{
		assemblies: make(map[string]*metadata.Assembly),
		stack:      stack.New(stackCapacity),
		heap:       NewHeap(),
		statics:    NewStaticStore(),
	}
}

// AddAssembly registers asm under its module name, per spec.md §6.5. A
// later AddAssembly with the same name replaces the earlier entry without
// disturbing registry insertion order.
func (rt *Runtime) AddAssembly(asm *metadata.Assembly) {
	name := asm.Name()
	if _, exists := rt.assemblies[name]; !exists {
		rt.order = append(rt.order, name)
	}
	rt.assemblies[name] = asm
}

// AddAssemblyLoader registers a loader callback, tried in insertion order
// when a MemberRef's assembly name is not already in the registry.
func (rt *Runtime) AddAssemblyLoader(l AssemblyLoader) {
	rt.loaders = append(rt.loaders, l)
}

// SetBreakHook installs the brk handler.
func (rt *Runtime) SetBreakHook(h BreakHook) { rt.breakHook = h }

// Abort requests that the frame loop stop at the next instruction
// boundary. A BreakHook calls this to end the run from inside a break.
func (rt *Runtime) Abort() { rt.aborted = true }

// Heap exposes the runtime's managed heap, e.g. for the step debugger.
func (rt *Runtime) Heap() *Heap { return rt.heap }

// Stack exposes the runtime's shared evaluation stack.
func (rt *Runtime) Stack() *stack.Stack { return rt.stack }

func (rt *Runtime) resolveAssembly(name string) (*metadata.Assembly, error) {
	if asm, ok := rt.assemblies[name]; ok {
		return asm, nil
	}
	for _, loader := range rt.loaders {
		asm, err := loader(name)
		if err != nil || asm == nil {
			Logger().Warn("loader declined assembly", zap.String("assembly", name), zap.Error(err))
			continue
		}
		rt.AddAssembly(asm)
		return asm, nil
	}
	return nil, errors.AssemblyNotFound(name)
}

// resolveCallTarget dispatches a call/newobj token to its target assembly
// and method token, per spec.md §4.G's call opcode: MethodDef resolves
// within the same assembly, MemberRef resolves through
// MemberRef -> TypeRef -> AssemblyRef and the loader registry, anything
// else is BadCall.
func (rt *Runtime) resolveCallTarget(asm *metadata.Assembly, tok metadata.Token) (*metadata.Assembly, metadata.Token, error) {
	switch tok.Table() {
	case metadata.TableMethodDef:
		return asm, tok, nil
	case metadata.TableMemberRef:
		rm, err := asm.ResolveMemberRef(tok)
		if err != nil {
			return nil, 0, err
		}
		target, err := rt.resolveAssembly(rm.AssemblyName)
		if err != nil {
			return nil, 0, err
		}
		methodTok, err := target.GetMethodByName(rm.Namespace, rm.TypeName, rm.MethodName)
		if err != nil {
			return nil, 0, err
		}
		return target, methodTok, nil
	default:
		return nil, 0, errors.BadCall(uint32(tok))
	}
}

// instanceSize computes newobj's allocation size for typeDefTok. This
// implementation's RowWidths fixes ClassLayout's row width at zero, so
// the table can never structurally hold rows (metadata.Tables.
// ClassLayoutOfType always reports not-found); instead the owning type's
// size is approximated by counting its owned Field rows and assuming a
// fixed 8-byte slot per field.
func (rt *Runtime) instanceSize(asm *metadata.Assembly, typeDefTok metadata.Token) (int, error) {
	start, end, err := asm.Tables.FieldRange(typeDefTok.Index())
	if err != nil {
		return 0, err
	}
	const slotSize = 8
	return int(end-start) * slotSize, nil
}

// ensureInitialized runs typeDefTok's .cctor exactly once. The type is
// marked initialized BEFORE the cctor body executes, since that body may
// itself write the type's own static fields (spec.md §8 concrete scenario
// 3); a type with no .cctor is simply marked initialized with nothing run.
func (rt *Runtime) ensureInitialized(asm *metadata.Assembly, typeDefTok metadata.Token) error {
	if rt.statics.IsInitialized(asm.Name(), typeDefTok) {
		return nil
	}
	rt.statics.MarkInitialized(asm.Name(), typeDefTok)

	td, err := asm.Tables.TypeDef(typeDefTok)
	if err != nil {
		return err
	}
	namespace, err := asm.Strings.String(uint32(td.NamespaceIndex))
	if err != nil {
		namespace = ""
	}
	typeName, err := asm.Strings.String(uint32(td.NameIndex))
	if err != nil {
		return err
	}

	cctorTok, err := asm.GetMethodByName(namespace, typeName, ".cctor")
	if err != nil {
		if isMethodNotFound(err) {
			return nil
		}
		return err
	}
	return rt.execute(asm, cctorTok)
}

func isMethodNotFound(err error) bool {
	ce, ok := err.(*errors.Error)
	return ok && ce.Kind == errors.KindMethodNotFound
}

// Run moves asm into the registry, sizes the stack from its optional
// header, and executes its CLR entry point token to completion (spec.md
// §6.6). The exit code is currently always 0, as spec.md says.
func (rt *Runtime) Run(asm *metadata.Assembly) (int32, error) {
	rt.AddAssembly(asm)

	if cap := int(asm.Headers.Optional.SizeOfStackReserve); cap > 0 {
		rt.stack = stack.New(cap)
	}

	entryTok := metadata.Token(asm.Headers.CLR.EntryPointToken)
	if err := rt.execute(asm, entryTok); err != nil {
		return 0, err
	}
	return 0, nil
}

// execute runs methodTok's instructions to completion using the frame
// state machine of spec.md §4.G: Fetching decodes, Executing applies,
// Returned is terminal. Branches stay within Fetching by setting
// f.offset directly and skipping the sequential next-offset advance.
func (rt *Runtime) execute(asm *metadata.Assembly, methodTok metadata.Token) error {
	_, code, err := loadMethodBody(asm, methodTok)
	if err != nil {
		return err
	}

	f := &Frame{Assembly: asm, MethodTok: methodTok, ID: nextFrameID(), code: code, state: stateFetching}

	for {
		if rt.aborted {
			return errors.New(errors.PhaseDispatch, errors.KindUnimplemented).
				Detail("run aborted from debugger").Offset(int64(f.offset)).Build()
		}
		switch f.state {
		case stateFetching:
			if f.offset >= len(f.code) {
				return errors.New(errors.PhaseDispatch, errors.KindBadImage).
					Detail("method body ran off the end without a ret").
					Offset(int64(f.offset)).Build()
			}
			ins, err := cil.Decode(f.code, f.offset)
			if err != nil {
				return err
			}
			f.cur = ins
			f.state = stateExecuting

		case stateExecuting:
			if f.cur.Opcode == cil.Ret {
				f.state = stateReturned
				continue
			}
			branched, err := rt.step(f, f.cur)
			if err != nil {
				return err
			}
			if !branched {
				f.offset = f.cur.NextOffset()
			}
			f.state = stateFetching

		case stateReturned:
			return nil
		}
	}
}

// step applies one non-ret instruction, returning whether it branched
// (in which case f.offset has already been set to the new target).
func (rt *Runtime) step(f *Frame, ins cil.Instruction) (bool, error) {
	Logger().Debug("dispatch",
		zap.String("method", f.MethodTok.String()),
		zap.Int("offset", f.offset),
		zap.String("opcode", ins.Opcode.String()))

	switch ins.Opcode {
	case cil.Nop:
		return false, nil

	case cil.Brk:
		if rt.breakHook != nil {
			rt.breakHook(rt, f)
		}
		return false, nil

	case cil.LdArg0, cil.LdArg1, cil.LdArg2, cil.LdArg3, cil.LdArgS:
		// Argument passing is a stub (spec.md §9); treated as a no-op.
		return false, nil

	case cil.LdLoc0, cil.LdLoc1, cil.LdLoc2, cil.LdLoc3:
		idx, _ := ins.Opcode.ArgLocal()
		return false, rt.ldloc(f, idx)
	case cil.LdLocS:
		return false, rt.ldloc(f, int(ins.Int))

	case cil.StLoc0, cil.StLoc1, cil.StLoc2, cil.StLoc3:
		idx, _ := ins.Opcode.ArgLocal()
		return false, rt.stloc(f, idx)
	case cil.StLocS:
		return false, rt.stloc(f, int(ins.Int))

	case cil.LdLocaS:
		return false, rt.stack.PushUnmanagedPointer(f.ID<<8 | uint64(ins.Int))

	case cil.LdcI4M1, cil.LdcI40, cil.LdcI41, cil.LdcI42, cil.LdcI43,
		cil.LdcI44, cil.LdcI45, cil.LdcI46, cil.LdcI47, cil.LdcI48:
		c, _ := ins.Opcode.Int4Const()
		return false, rt.stack.PushInt32(c)
	case cil.LdcI4S, cil.LdcI4:
		return false, rt.stack.PushInt32(int32(ins.Int))
	case cil.LdcI8:
		return false, rt.stack.PushInt64(ins.Int)
	case cil.LdcR4, cil.LdcR8:
		return false, rt.stack.PushFloat(ins.Float)

	case cil.Pop:
		_, _, err := rt.stack.PopAny()
		return false, err

	case cil.Ldstr:
		return false, rt.stack.PushManagedPointer(uint64(ins.Token))

	case cil.BrS, cil.Br:
		f.offset = ins.BranchTarget()
		return true, nil

	case cil.Ldsflda, cil.Ldsfld, cil.Stsfld:
		return false, rt.staticField(f, ins)

	case cil.Call:
		return false, rt.call(f, metadata.Token(ins.Token))

	case cil.Newobj:
		return false, rt.newobj(f, metadata.Token(ins.Token))

	default:
		return false, errors.Unimplemented(byte(ins.Opcode), int64(ins.Offset))
	}
}

func (rt *Runtime) stloc(f *Frame, idx int) error {
	if idx < 0 || idx >= len(f.locals) {
		return errors.New(errors.PhaseDispatch, errors.KindBadCall).
			Detail("local index %d out of range", idx).Build()
	}
	tag, bytes, err := rt.stack.PopAny()
	if err != nil {
		return err
	}
	f.locals[idx] = localSlot{has: true, tag: tag, bytes: bytes}
	return nil
}

func (rt *Runtime) ldloc(f *Frame, idx int) error {
	if idx < 0 || idx >= len(f.locals) {
		return errors.New(errors.PhaseDispatch, errors.KindBadCall).
			Detail("local index %d out of range", idx).Build()
	}
	slot := f.locals[idx]
	if !slot.has {
		return errors.New(errors.PhaseDispatch, errors.KindTypeMismatch).
			Detail("ldloc %d: slot is empty", idx).Build()
	}
	f.locals[idx] = localSlot{}
	return rt.stack.PushRaw(slot.tag, slot.bytes)
}

func (rt *Runtime) staticField(f *Frame, ins cil.Instruction) error {
	fieldTok := metadata.Token(ins.Token)
	typeDefTok, err := f.Assembly.GetTypeDefOfField(fieldTok)
	if err != nil {
		return err
	}
	if err := rt.ensureInitialized(f.Assembly, typeDefTok); err != nil {
		return err
	}

	switch ins.Opcode {
	case cil.Ldsflda:
		return rt.stack.PushManagedPointer(uint64(fieldTok))
	case cil.Ldsfld:
		tag, bytes, ok := rt.statics.Get(f.Assembly.Name(), fieldTok)
		if !ok {
			return rt.stack.PushInt32(0)
		}
		return rt.stack.PushRaw(tag, bytes)
	case cil.Stsfld:
		tag, bytes, err := rt.stack.PopAny()
		if err != nil {
			return err
		}
		rt.statics.Set(f.Assembly.Name(), fieldTok, tag, bytes)
		return nil
	}
	return nil
}

func (rt *Runtime) call(f *Frame, tok metadata.Token) error {
	targetAsm, targetTok, err := rt.resolveCallTarget(f.Assembly, tok)
	if err != nil {
		return err
	}
	return rt.execute(targetAsm, targetTok)
}

func (rt *Runtime) newobj(f *Frame, tok metadata.Token) error {
	targetAsm, ctorTok, err := rt.resolveCallTarget(f.Assembly, tok)
	if err != nil {
		return err
	}
	typeDefTok, err := targetAsm.GetTypeDefOfMethod(ctorTok)
	if err != nil {
		return err
	}
	size, err := rt.instanceSize(targetAsm, typeDefTok)
	if err != nil {
		return err
	}
	heapKey := rt.heap.Alloc(size)
	if err := rt.stack.PushManagedPointer(heapKey); err != nil {
		return err
	}
	return rt.execute(targetAsm, ctorTok)
}
