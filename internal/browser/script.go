package browser

// walkerJS defines hc, the in-page half of Page. Elements are tagged with a
// data-hc-ref attribute of the form "<docKey>:<n>", where docKey is "0" for
// the top document and "0.1", "0.1.2", ... for nested frames. Operations
// throw {hc: "notfound"} or {hc: "inaccessible"} for the Go side to map.
const walkerJS = `
const hc = (() => {
  const MAX_DEPTH = 3;
  const FORM = {INPUT: 1, TEXTAREA: 1, SELECT: 1};
  const fail = (code) => { throw {hc: code}; };

  const docs = (depth) => {
    const out = [{key: "0", depth: 0, doc: document, url: location.href, accessible: true, frame: null, parent: null}];
    const visit = (parent) => {
      if (parent.depth >= depth || !parent.doc) return;
      parent.doc.querySelectorAll("iframe, frame").forEach((f, i) => {
        const d = {key: parent.key + "." + (i + 1), depth: parent.depth + 1, doc: null, url: f.src || "", accessible: false, frame: f, parent};
        try {
          const cd = f.contentDocument;
          if (cd && cd.documentElement) {
            d.doc = cd;
            d.accessible = true;
            d.url = cd.location.href;
          }
        } catch (e) {}
        out.push(d);
        visit(d);
      });
    };
    visit(out[0]);
    return out;
  };

  const docByKey = (key) => docs(MAX_DEPTH).find((d) => d.key === key);

  const offset = (d) => {
    let x = 0, y = 0;
    for (; d && d.frame; d = d.parent) {
      const r = d.frame.getBoundingClientRect();
      x += r.left + d.frame.clientLeft;
      y += r.top + d.frame.clientTop;
    }
    return {x, y};
  };

  const nextSeq = () => {
    window.__hcSeq = (window.__hcSeq || 0) + 1;
    return window.__hcSeq;
  };

  const refOf = (el, key) => {
    let r = el.getAttribute("data-hc-ref");
    if (!r || r.split(":")[0] !== key) {
      r = key + ":" + nextSeq();
      el.setAttribute("data-hc-ref", r);
    }
    return r;
  };

  const lookup = (ref) => {
    const key = String(ref).split(":")[0];
    const d = docByKey(key);
    if (!d) fail("notfound");
    if (!d.doc) fail("inaccessible");
    const el = d.doc.querySelector('[data-hc-ref="' + ref + '"]');
    if (!el) fail("notfound");
    return {el, d};
  };

  const visible = (el) => {
    if (!(el.offsetWidth || el.offsetHeight || el.getClientRects().length)) return false;
    const st = el.ownerDocument.defaultView.getComputedStyle(el);
    return st.visibility !== "hidden" && st.display !== "none";
  };

  const rectOf = (el, d) => {
    const r = el.getBoundingClientRect();
    const o = offset(d);
    return {x: r.left + o.x, y: r.top + o.y, width: r.width, height: r.height};
  };

  const textOf = (el) => (el ? (el.innerText || el.textContent || "").trim() : "");

  const snap = (el, d) => {
    const tag = el.tagName.toUpperCase();
    const attr = (n) => el.getAttribute(n) || "";
    let type = attr("type").toLowerCase();
    if (tag === "INPUT" && !type) type = "text";
    return {
      ref: refOf(el, d.key),
      doc: d.key,
      tag,
      text: FORM[tag] ? "" : textOf(el).slice(0, 4000),
      value: FORM[tag] ? String(el.value || "") : attr("value"),
      type,
      name: attr("name"),
      id: el.id ? String(el.id) : "",
      class: attr("class"),
      placeholder: attr("placeholder"),
      alt: attr("alt"),
      src: typeof el.src === "string" ? el.src : attr("src"),
      href: typeof el.href === "string" ? el.href : attr("href"),
      maxLength: el.maxLength > 0 ? el.maxLength : 0,
      checked: !!el.checked,
      disabled: !!el.disabled,
      visible: visible(el),
      children: el.children.length,
      rect: rectOf(el, d),
    };
  };

  const firstInput = (root) => (root ? root.querySelector("input, textarea") : null);

  return {
    url: () => location.href,
    text: () => (document.body ? document.body.innerText : ""),
    html: () => document.documentElement.outerHTML,

    documents: (depth) => docs(depth).map((d) => ({
      key: d.key,
      depth: d.depth,
      url: d.url,
      accessible: d.accessible,
      text: d.doc && d.doc.body ? d.doc.body.innerText : "",
    })),

    query: (selector, depth, key) => {
      const out = [];
      for (const d of docs(key ? MAX_DEPTH : depth)) {
        if (key && d.key !== key) continue;
        if (!d.doc) {
          if (key) fail("inaccessible");
          continue;
        }
        d.doc.querySelectorAll(selector).forEach((el) => out.push(snap(el, d)));
      }
      return out;
    },

    ancestors: (ref, n) => {
      const {el, d} = lookup(ref);
      const out = [snap(el, d)];
      for (let p = el.parentElement; p && out.length < n; p = p.parentElement) {
        if (p.tagName === "BODY" || p.tagName === "HTML") break;
        out.push(snap(p, d));
      }
      return out;
    },

    rect: (ref) => {
      const {el, d} = lookup(ref);
      return rectOf(el, d);
    },

    labelled: (key, label) => {
      const want = String(label).toLowerCase();
      for (const d of docs(MAX_DEPTH)) {
        if (!d.doc || (key && d.key !== key)) continue;
        const match = Array.from(d.doc.querySelectorAll("label")).find((l) => textOf(l).toLowerCase().includes(want));
        if (!match) continue;
        const id = match.getAttribute("for");
        if (id) {
          const el = d.doc.getElementById(id);
          if (el) return snap(el, d);
        }
        for (let p = match.parentElement; p && p.tagName !== "BODY"; p = p.parentElement) {
          const inp = firstInput(p) || firstInput(p.nextElementSibling);
          if (inp) return snap(inp, d);
        }
      }
      return null;
    },

    following: (ref) => {
      const {el, d} = lookup(ref);
      const out = {next: [], parentNext: null};
      for (let s = el.nextElementSibling; s; s = s.nextElementSibling) {
        if (s.tagName === "INPUT") {
          out.next.push(snap(s, d));
          continue;
        }
        const inp = s.querySelector("input");
        if (inp) out.next.push(snap(inp, d));
      }
      const pn = el.parentElement && el.parentElement.nextElementSibling;
      const inp = pn ? pn.querySelector("input") : null;
      if (inp) out.parentNext = snap(inp, d);
      return out;
    },

    adjacent: (ref) => {
      const {el} = lookup(ref);
      const parent = el.parentElement;
      return {
        prev: textOf(el.previousElementSibling),
        next: textOf(el.nextElementSibling),
        parentPrev: textOf(parent && parent.previousElementSibling),
      };
    },

    navigate: (url) => {
      setTimeout(() => { window.location.href = url; }, 0);
      return true;
    },

    scroll: (ref) => {
      const {el} = lookup(ref);
      el.scrollIntoView({block: "center", inline: "nearest"});
      return true;
    },

    dispatch: (ref, x, y) => {
      const {el, d} = lookup(ref);
      const o = offset(d);
      const view = el.ownerDocument.defaultView;
      const init = {bubbles: true, cancelable: true, view, clientX: x - o.x, clientY: y - o.y, button: 0};
      for (const type of ["mousedown", "mouseup", "click"]) {
        el.dispatchEvent(new view.MouseEvent(type, init));
      }
      return true;
    },

    click: (ref) => {
      lookup(ref).el.click();
      return true;
    },

    focus: (ref) => {
      const {el} = lookup(ref);
      if (el.tabIndex < 0 && !el.hasAttribute("tabindex")) el.setAttribute("tabindex", "0");
      el.focus();
      return true;
    },

    setValue: (ref, value, ev) => {
      const {el} = lookup(ref);
      const w = el.ownerDocument.defaultView;
      if (ev & 1) el.focus();
      const proto = el.tagName === "TEXTAREA" ? w.HTMLTextAreaElement.prototype
        : el.tagName === "SELECT" ? w.HTMLSelectElement.prototype
        : w.HTMLInputElement.prototype;
      const desc = Object.getOwnPropertyDescriptor(proto, "value");
      if (desc && desc.set) desc.set.call(el, value); else el.value = value;
      if (ev & 2) el.setAttribute("value", value);
      if (ev & 32) {
        const key = value.slice(-1) || "Unidentified";
        for (const type of ["keydown", "keypress", "keyup"]) {
          el.dispatchEvent(new w.KeyboardEvent(type, {bubbles: true, key}));
        }
      }
      if (ev & 4) el.dispatchEvent(new w.Event("input", {bubbles: true}));
      if (ev & 8) el.dispatchEvent(new w.Event("change", {bubbles: true}));
      if (ev & 16) el.dispatchEvent(new w.Event("blur", {bubbles: false}));
      if (ev & 64) el.blur();
      return true;
    },

    getItem: (key) => {
      const v = window.sessionStorage.getItem(key);
      return {value: v === null ? "" : v, ok: v !== null};
    },
    setItem: (key, value) => {
      window.sessionStorage.setItem(key, value);
      return true;
    },
    removeItem: (key) => {
      window.sessionStorage.removeItem(key);
      return true;
    },

    scrollOffset: () => ({x: window.scrollX, y: window.scrollY}),
  };
})();
`
