package services

import (
	"encoding/json"
	"fmt"
	"strings"
)

// refAttr tags elements handed out by Elements so later calls can find the
// same node again without holding a remote object.
const refAttr = "data-recibo-ref"

// frameAttr tags reachable iframes so Frames can return stable selectors.
const frameAttr = "data-recibo-frame"

// rootJS resolves a frame selector to its document. Cross-origin frames
// throw on contentDocument access and resolve to null.
const rootJS = `function __root(frame) {
	if (!frame) return document;
	const f = document.querySelector(frame);
	if (!f) return null;
	try { return f.contentDocument || null; } catch (e) { return null; }
}
function __node(frame, ref) {
	const root = __root(frame);
	if (!root) return null;
	try { return root.querySelector(ref); } catch (e) { return null; }
}`

const elementsJS = `function(frame, container, selector, refAttr) {
	const root = __root(frame);
	if (!root) return [];
	let base = root;
	if (container) {
		try { base = root.querySelector(container); } catch (e) { return []; }
		if (!base) return [];
	}
	let nodes;
	try { nodes = base.querySelectorAll(selector); } catch (e) { return []; }
	const out = [];
	for (const el of nodes) {
		if (!el.hasAttribute(refAttr)) {
			window.top.__reciboSeq = (window.top.__reciboSeq || 0) + 1;
			el.setAttribute(refAttr, String(window.top.__reciboSeq));
		}
		const attrs = {};
		for (const a of el.attributes) attrs[a.name] = a.value;
		if (el.tagName === 'INPUT' && typeof el.value === 'string') attrs.value = el.value;
		out.push({
			ref: '[' + refAttr + '="' + el.getAttribute(refAttr) + '"]',
			tag: el.tagName.toLowerCase(),
			text: ((el.innerText || el.textContent || '') + '').trim(),
			href: typeof el.href === 'string' ? el.href : '',
			attrs: attrs,
		});
	}
	return out;
}`

const fillJS = `function(frame, ref, value) {
	const el = __node(frame, ref);
	if (!el) return 'detached';
	const tag = el.tagName;
	const blocked = ['hidden', 'submit', 'button', 'checkbox', 'radio', 'file', 'image', 'reset'];
	if (tag !== 'TEXTAREA' && !(tag === 'INPUT' && !blocked.includes((el.type || '').toLowerCase()))) return 'not fillable';
	if (el.disabled) return 'disabled';
	if (el.readOnly) return 'read-only';
	el.focus();
	const desc = Object.getOwnPropertyDescriptor(Object.getPrototypeOf(el), 'value');
	if (desc && desc.set) desc.set.call(el, value); else el.value = value;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	el.blur();
	return '';
}`

const optionsJS = `function(frame, ref) {
	const el = __node(frame, ref);
	if (!el || el.tagName !== 'SELECT') return [];
	return Array.from(el.options).map(o => ({ value: o.value, text: (o.text || '').trim() }));
}`

const selectJS = `function(frame, ref, value) {
	const el = __node(frame, ref);
	if (!el) return 'detached';
	if (el.tagName !== 'SELECT') return 'not a select';
	if (el.disabled) return 'disabled';
	if (!Array.from(el.options).some(o => o.value === value)) return 'no such option';
	el.value = value;
	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return '';
}`

const clickJS = `function(frame, ref) {
	const el = __node(frame, ref);
	if (!el) return 'detached';
	try { el.scrollIntoView({ block: 'center' }); } catch (e) {}
	el.click();
	return '';
}`

const nudgeJS = `function(frame, container) {
	const root = __root(frame);
	if (!root) return false;
	const win = root.defaultView || window;
	let target = null;
	if (container) {
		try { target = root.querySelector(container); } catch (e) {}
	}
	if (target) {
		target.scrollIntoView({ block: 'end' });
		target.scrollTop = target.scrollHeight;
	} else {
		win.scrollBy(0, Math.max(200, win.innerHeight / 2));
	}
	return true;
}`

const htmlJS = `function(frame) {
	const root = __root(frame);
	if (!root || !root.documentElement) return '';
	return root.documentElement.outerHTML;
}`

const framesJS = `function(frameAttr) {
	const out = [];
	let n = 0;
	for (const f of document.querySelectorAll('iframe, frame')) {
		let doc = null;
		try { doc = f.contentDocument; } catch (e) {}
		if (!doc) continue;
		if (!f.hasAttribute(frameAttr)) f.setAttribute(frameAttr, String(++n));
		out.push('[' + frameAttr + '="' + f.getAttribute(frameAttr) + '"]');
	}
	return out;
}`

// neutralizePopupsJS keeps window.open and target=_blank links in the
// current tab. It is installed for new documents and run once in place.
const neutralizePopupsJS = `(function() {
	if (window.__reciboNoPopups) return true;
	window.__reciboNoPopups = true;
	window.open = function(url) {
		if (url) window.location.href = url;
		return window;
	};
	document.addEventListener('click', function(e) {
		const a = e.target && e.target.closest ? e.target.closest('a[target]') : null;
		if (a && a.target !== '_self') a.target = '_self';
	}, true);
	return true;
})()`

// callJS renders fn applied to args, with the frame helpers in scope.
func callJS(fn string, args ...interface{}) (string, error) {
	encoded := make([]string, len(args))
	for i, arg := range args {
		raw, err := json.Marshal(arg)
		if err != nil {
			return "", fmt.Errorf("failed to encode script argument: %w", err)
		}
		encoded[i] = string(raw)
	}
	return fmt.Sprintf("(function() {\n%s\nreturn (%s)(%s);\n})()", rootJS, fn, strings.Join(encoded, ", ")), nil
}
