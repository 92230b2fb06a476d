package jsglue

import "fmt"

// writeRuntime emits the support code the manifest says the bindings
// reach for. Anything unused stays out of the output.
func (g *generator) writeRuntime() {
	g.b.WriteString("function isLikeNone(x) { return x === undefined || x === null; }\n\n")

	if g.man.MemoryViews {
		g.writeMemoryViews()
	}
	if g.man.StringCodec {
		g.writeStringCodec()
	}
	if g.man.MemoryViews {
		g.writeArrayHelpers()
	}
	if g.man.HeapTable {
		g.writeHeapTable()
	}
	if g.man.ClosureTable {
		g.writeClosureTable()
	}
	if g.man.FunctionTable {
		g.writeFunctionTable()
	}
}

// writeMemoryViews emits cached views over the guest memory. Views
// detach on memory growth, so every accessor revalidates.
func (g *generator) writeMemoryViews() {
	g.b.WriteString(`let cachedUint8 = null;
let cachedDataView = null;

function getUint8Memory() {
  if (cachedUint8 === null || cachedUint8.byteLength === 0) {
    cachedUint8 = new Uint8Array(wasm.memory.buffer);
  }
  return cachedUint8;
}

function getDataView() {
  if (cachedDataView === null || cachedDataView.buffer !== wasm.memory.buffer
      || cachedDataView.buffer.byteLength === 0) {
    cachedDataView = new DataView(wasm.memory.buffer);
  }
  return cachedDataView;
}

function invalidateViews() {
  cachedUint8 = null;
  cachedDataView = null;
}

`)
}

func (g *generator) writeStringCodec() {
	fmt.Fprintf(&g.b, `const textEncoder = new TextEncoder();
const textDecoder = new TextDecoder('utf-8', { ignoreBOM: true, fatal: true });

let WASM_VECTOR_LEN = 0;

function liftString(ptr, len) {
  return textDecoder.decode(getUint8Memory().subarray(ptr, ptr + len));
}

function takeString(ptr, len) {
  const s = liftString(ptr, len);
  wasm[%q](ptr, len);
  return s;
}

function passString(str) {
  const bytes = textEncoder.encode(str);
  const ptr = wasm[%q](bytes.length);
  getUint8Memory().subarray(ptr, ptr + bytes.length).set(bytes);
  WASM_VECTOR_LEN = bytes.length;
  return ptr;
}

`, g.cfg.Free, g.cfg.Malloc)
}

func (g *generator) writeArrayHelpers() {
	fmt.Fprintf(&g.b, `function liftArray(Ctor, ptr, len, take) {
  const view = new Ctor(getUint8Memory().buffer, ptr, len);
  const out = new Ctor(view);
  if (take) {
    wasm[%q](ptr, len * Ctor.BYTES_PER_ELEMENT);
  }
  return out;
}

function passArray(Ctor, arr) {
  const src = arr instanceof Ctor ? arr : Ctor.from(arr);
  const bytes = src.length * Ctor.BYTES_PER_ELEMENT;
  const ptr = wasm[%q](bytes);
  new Uint8Array(getUint8Memory().buffer, ptr, bytes)
    .set(new Uint8Array(src.buffer, src.byteOffset, bytes));
  WASM_VECTOR_LEN = src.length;
  return ptr;
}

`, g.cfg.Free, g.cfg.Malloc)

	if g.man.StringCodec {
		fmt.Fprintf(&g.b, `function liftStringArray(ptr, len, take) {
  const out = [];
  for (let i = 0; i < len; i++) {
    const base = ptr + i * 8;
    const p = getDataView().getUint32(base, true);
    const l = getDataView().getUint32(base + 4, true);
    out.push(take ? takeString(p, l) : liftString(p, l));
  }
  if (take) {
    wasm[%q](ptr, len * 8);
  }
  return out;
}

`, g.cfg.Free)
	}

	if g.man.HeapTable {
		fmt.Fprintf(&g.b, `function liftSlotArray(ptr, len, take) {
  const out = [];
  for (let i = 0; i < len; i++) {
    const slot = getDataView().getUint32(ptr + i * 4, true);
    out.push(take ? heapTake(slot) : heapGet(slot));
  }
  if (take) {
    wasm[%q](ptr, len * 4);
  }
  return out;
}

`, g.cfg.Free)
	}
}

// writeHeapTable emits the slot table for JS values the guest holds by
// index. Slot 0 is never allocated: it doubles as the option sentinel.
func (g *generator) writeHeapTable() {
	g.b.WriteString(`const heap = [undefined];
let heapNext = 0;

function heapAdd(obj) {
  if (heapNext === 0) {
    heap.push(obj);
    return heap.length - 1;
  }
  const idx = heapNext;
  heapNext = heap[idx];
  heap[idx] = obj;
  return idx;
}

function heapGet(idx) {
  return heap[idx];
}

function heapDrop(idx) {
  if (idx === 0) return;
  heap[idx] = heapNext;
  heapNext = idx;
}

function heapTake(idx) {
  const obj = heap[idx];
  heapDrop(idx);
  return obj;
}

`)
}

// writeClosureTable emits the table for host functions the guest calls
// back into. Ids carry a generation in the low byte so a stale id from
// a recycled slot is detected instead of silently calling the wrong
// function.
func (g *generator) writeClosureTable() {
	g.b.WriteString(`const closures = [];
let closureNext = -1;

function closureAdd(fn, once) {
  let idx;
  if (closureNext === -1) {
    idx = closures.length;
    closures.push({ fn: null, gen: 0, once: false, called: false });
  } else {
    idx = closureNext;
    closureNext = closures[idx].next;
  }
  const entry = closures[idx];
  entry.fn = fn;
  entry.once = once;
  entry.called = false;
  return (idx << 8) | (entry.gen & 0xff);
}

function closureInvoke(id) {
  const entry = closures[id >>> 8];
  if (!entry || entry.fn === null || (entry.gen & 0xff) !== (id & 0xff)) {
    throw new Error('stale closure id ' + id);
  }
  if (entry.once) {
    if (entry.called) {
      throw new Error('closure can only be called once');
    }
    entry.called = true;
    const fn = entry.fn;
    closureDrop(id);
    return fn;
  }
  return entry.fn;
}

function closureDrop(id) {
  const idx = id >>> 8;
  const entry = closures[idx];
  if (!entry || entry.fn === null || (entry.gen & 0xff) !== (id & 0xff)) {
    return;
  }
  entry.fn = null;
  entry.gen++;
  entry.next = closureNext;
  closureNext = idx;
}

`)
}

// writeFunctionTable emits the wrapper for guest closures crossing out
// to the host as a function-table index plus environment word.
func (g *generator) writeFunctionTable() {
	g.b.WriteString(`function guestClosure(idx, data, once) {
  let called = false;
  const target = wasm.__indirect_function_table.get(idx);
  return (...args) => {
    if (once) {
      if (called) {
        throw new Error('closure can only be called once');
      }
      called = true;
    }
    return target(data, ...args);
  };
}

`)
}
