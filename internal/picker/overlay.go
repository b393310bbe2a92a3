package picker

import "strconv"

// Overlay scripts injected into target pages.
//
// Constraints (many target pages set a strict CSP and aggressive global
// styles):
//   - every node is built with createElement + discrete style
//     assignment, never innerHTML, so markup-injection sinks blocked by
//     CSP are never touched;
//   - styles are applied with setProperty(..., 'important') to resist
//     the host page's own rules;
//   - SPAs render their content after load, so initialization is
//     deferred 1s and then polls every 0.5s for a body to attach to.
//
// The page talks back to the host through a single CDP binding; the host
// drives all visual updates by calling into window.__peekdeckOverlay.

// BindingName is the CDP binding the overlay reports events through.
const BindingName = "__peekdeckPickerEvent"

// overlayInitDelayMS is how long the overlay waits before its first
// injection attempt, and overlayPollMS the retry period while the page
// has no body yet.
const (
	overlayInitDelayMS = 1000
	overlayPollMS      = 500
)

// overlayCoreJS is shared by both picker variants: element bookkeeping,
// the selector generation mirror, CSP-safe node construction and the
// host-callable drawing API.
const overlayCoreJS = `
(function() {
	'use strict';
	if (window.__peekdeckOverlay) return;

	var BINDING = '__peekdeckPickerEvent';
	var tokens = new Map();   // token -> element
	var nextToken = 1;
	var nodes = { highlight: null, rect: null, toolbar: null, prompt: null };
	var badges = new Map();   // token -> badge node
	var marks = [];
	var listeners = [];

	function send(msg) {
		try { window[BINDING](JSON.stringify(msg)); } catch (e) {}
	}

	function style(node, props) {
		for (var k in props) node.style.setProperty(k, props[k], 'important');
	}

	function make(tag, props) {
		var node = document.createElement(tag);
		style(node, props || {});
		return node;
	}

	function listen(target, type, fn, capture) {
		target.addEventListener(type, fn, capture);
		listeners.push([target, type, fn, capture]);
	}

	// Mirror of the host-side selector algorithm: id first, then a
	// unique compound class selector, then a structural path with an
	// ancestor id short-circuit.
	function cssEscape(ident) {
		if (window.CSS && CSS.escape) return CSS.escape(ident);
		return ident.replace(/([^a-zA-Z0-9_-￿-])/g, '\\$1');
	}

	function generateSelector(el) {
		if (el.id) return '#' + cssEscape(el.id);

		if (el.classList && el.classList.length > 0) {
			var compound = '';
			for (var i = 0; i < el.classList.length; i++) {
				compound += '.' + cssEscape(el.classList[i]);
			}
			try {
				if (document.querySelectorAll(compound).length === 1) return compound;
			} catch (e) {}
		}

		var path = [];
		var node = el;
		while (node && node.nodeType === Node.ELEMENT_NODE && node !== document.body) {
			if (node.id) {
				path.unshift('#' + cssEscape(node.id));
				break;
			}
			var seg = node.tagName.toLowerCase();
			var parent = node.parentElement;
			if (parent) {
				var sameTag = [];
				for (var c = 0; c < parent.children.length; c++) {
					if (parent.children[c].tagName === node.tagName) sameTag.push(parent.children[c]);
				}
				if (sameTag.length > 1) {
					seg += ':nth-child(' + (sameTag.indexOf(node) + 1) + ')';
				}
			}
			path.unshift(seg);
			node = parent;
		}
		return path.length ? path.join(' > ') : el.tagName.toLowerCase();
	}

	function tokenFor(el) {
		for (var entry of tokens) {
			if (entry[1] === el) return entry[0];
		}
		var t = 't' + (nextToken++);
		tokens.set(t, el);
		return t;
	}

	function describe(el) {
		var info = {
			token: tokenFor(el),
			tag: el.tagName ? el.tagName.toLowerCase() : '',
			inputType: (el.getAttribute && el.getAttribute('type')) || '',
			selector: generateSelector(el)
		};
		var btn = el.closest ? el.closest('button') : null;
		if (btn && btn !== el) {
			info.buttonAncestor = {
				token: tokenFor(btn),
				tag: 'button',
				inputType: '',
				selector: generateSelector(btn)
			};
		}
		return info;
	}

	function isOwn(el) {
		while (el) {
			if (el.__peekdeckOwn) return true;
			el = el.parentElement;
		}
		return false;
	}

	function own(node) { node.__peekdeckOwn = true; return node; }

	function boxFor(el) {
		var r = el.getBoundingClientRect();
		return { left: r.left, top: r.top, width: r.width, height: r.height };
	}

	window.__peekdeckOverlay = {
		send: send, make: make, own: own, style: style, listen: listen,
		describe: describe, isOwn: isOwn, tokens: tokens, nodes: nodes,

		highlight: function(token) {
			var el = tokens.get(token);
			if (!el) return;
			if (!nodes.highlight) {
				nodes.highlight = own(make('div', {
					'position': 'fixed', 'pointer-events': 'none',
					'border': '2px solid #4a90d9',
					'background': 'rgba(74,144,217,0.15)',
					'z-index': '2147483645'
				}));
				document.body.appendChild(nodes.highlight);
			}
			var b = boxFor(el);
			style(nodes.highlight, {
				'left': b.left + 'px', 'top': b.top + 'px',
				'width': b.width + 'px', 'height': b.height + 'px',
				'display': 'block'
			});
		},

		clearHighlight: function() {
			if (nodes.highlight) style(nodes.highlight, { 'display': 'none' });
		},

		addBadge: function(token, n) {
			this.removeBadge(token);
			var el = tokens.get(token);
			if (!el) return;
			var b = boxFor(el);
			var badge = own(make('div', {
				'position': 'fixed',
				'left': b.left + 'px', 'top': b.top + 'px',
				'min-width': '22px', 'height': '22px',
				'line-height': '22px', 'text-align': 'center',
				'background': '#4a90d9', 'color': '#fff',
				'font': 'bold 13px sans-serif', 'border-radius': '11px',
				'pointer-events': 'none', 'z-index': '2147483646'
			}));
			badge.textContent = String(n);
			document.body.appendChild(badge);
			badges.set(token, badge);
		},

		removeBadge: function(token) {
			var badge = badges.get(token);
			if (badge) { badge.remove(); badges.delete(token); }
		},

		renumberBadge: function(token, n) {
			var badge = badges.get(token);
			if (badge) badge.textContent = String(n);
		},

		drawRect: function(x, y, w, h) {
			if (!nodes.rect) {
				nodes.rect = own(make('div', {
					'position': 'fixed', 'pointer-events': 'none',
					'border': '2px dashed #e67e22',
					'background': 'rgba(230,126,34,0.1)',
					'z-index': '2147483645'
				}));
				document.body.appendChild(nodes.rect);
			}
			style(nodes.rect, {
				'left': x + 'px', 'top': y + 'px',
				'width': w + 'px', 'height': h + 'px',
				'display': 'block'
			});
		},

		clearRect: function() {
			if (nodes.rect) style(nodes.rect, { 'display': 'none' });
		},

		markField: function(token) {
			var el = tokens.get(token);
			if (!el) return;
			el.style.setProperty('outline', '3px solid #27ae60', 'important');
			marks.push(el);
		},

		prompt: function(msg) {
			if (nodes.prompt) nodes.prompt.textContent = msg;
		},

		scroll: function() {
			return { x: window.scrollX, y: window.scrollY };
		},

		teardown: function() {
			for (var i = 0; i < listeners.length; i++) {
				var l = listeners[i];
				l[0].removeEventListener(l[1], l[2], l[3]);
			}
			listeners = [];
			badges.forEach(function(b) { b.remove(); });
			badges.clear();
			marks.forEach(function(el) { el.style.removeProperty('outline'); });
			marks = [];
			for (var k in nodes) {
				if (nodes[k]) { nodes[k].remove(); nodes[k] = null; }
			}
			delete window.__peekdeckOverlay;
		}
	};
})();
`

// regionOverlayJS wires the region picker's toolbar and pointer
// listeners on top of the core, reporting every interaction to the host.
const regionOverlayJS = overlayCoreJS + `
(function() {
	'use strict';
	var o = window.__peekdeckOverlay;
	if (!o || o.regionReady) return;
	o.regionReady = true;

	var mode = 'idle';

	function button(label, msg) {
		var b = o.own(o.make('button', {
			'margin': '0 4px', 'padding': '6px 12px',
			'font': '13px sans-serif', 'cursor': 'pointer',
			'background': '#fff', 'color': '#222',
			'border': '1px solid #888', 'border-radius': '4px'
		}));
		b.textContent = label;
		b.type = 'button';
		o.listen(b, 'click', function(ev) {
			ev.stopPropagation();
			ev.preventDefault();
			o.send(msg());
		}, true);
		return b;
	}

	var toolbar = o.own(o.make('div', {
		'position': 'fixed', 'top': '12px', 'left': '50%',
		'transform': 'translateX(-50%)',
		'background': 'rgba(30,30,30,0.95)', 'padding': '8px',
		'border-radius': '6px', 'z-index': '2147483647',
		'display': 'flex', 'align-items': 'center'
	}));
	toolbar.appendChild(button('Select Elements', function() { return { type: 'mode_css' }; }));
	toolbar.appendChild(button('Crop Region', function() { return { type: 'mode_crop' }; }));
	toolbar.appendChild(button('Done', function() {
		return { type: 'finish', scroll: o.scroll() };
	}));
	toolbar.appendChild(button('Cancel', function() { return { type: 'cancel' }; }));

	var prompt = o.own(o.make('span', {
		'margin-left': '8px', 'color': '#eee', 'font': '13px sans-serif'
	}));
	prompt.textContent = 'Pick a mode to start';
	toolbar.appendChild(prompt);
	o.nodes.toolbar = toolbar;
	o.nodes.prompt = prompt;
	document.body.appendChild(toolbar);

	// Full-viewport capture layer for crop drags. Transparent, only
	// intercepting events while crop mode is active.
	var layer = o.own(o.make('div', {
		'position': 'fixed', 'left': '0', 'top': '0',
		'width': '100vw', 'height': '100vh',
		'z-index': '2147483644', 'display': 'none',
		'cursor': 'crosshair', 'background': 'transparent'
	}));
	document.body.appendChild(layer);
	o.nodes.cropLayer = layer;

	o.setMode = function(m) {
		mode = m;
		layer.style.setProperty('display', m === 'crop' ? 'block' : 'none', 'important');
	};

	o.listen(document, 'pointermove', function(ev) {
		if (mode !== 'css' || o.isOwn(ev.target)) return;
		o.send({ type: 'hover', element: o.describe(ev.target) });
	}, true);

	o.listen(document, 'click', function(ev) {
		if (mode !== 'css' || o.isOwn(ev.target)) return;
		ev.preventDefault();
		ev.stopPropagation();
		o.send({ type: 'click', element: o.describe(ev.target) });
	}, true);

	o.listen(layer, 'pointerdown', function(ev) {
		o.send({ type: 'pointerdown', point: { x: ev.clientX, y: ev.clientY } });
	}, true);
	o.listen(layer, 'pointermove', function(ev) {
		o.send({ type: 'pointermove', point: { x: ev.clientX, y: ev.clientY } });
	}, true);
	o.listen(layer, 'pointerup', function(ev) {
		o.send({ type: 'pointerup', point: { x: ev.clientX, y: ev.clientY }, scroll: o.scroll() });
	}, true);

	o.send({ type: 'ready' });
})();
`

// credentialOverlayJS wires the three-step login-field walk.
const credentialOverlayJS = overlayCoreJS + `
(function() {
	'use strict';
	var o = window.__peekdeckOverlay;
	if (!o || o.credentialReady) return;
	o.credentialReady = true;

	function button(label, msg) {
		var b = o.own(o.make('button', {
			'margin': '0 4px', 'padding': '6px 12px',
			'font': '13px sans-serif', 'cursor': 'pointer',
			'background': '#fff', 'color': '#222',
			'border': '1px solid #888', 'border-radius': '4px'
		}));
		b.textContent = label;
		b.type = 'button';
		o.listen(b, 'click', function(ev) {
			ev.stopPropagation();
			ev.preventDefault();
			o.send(msg());
		}, true);
		return b;
	}

	var toolbar = o.own(o.make('div', {
		'position': 'fixed', 'top': '12px', 'left': '50%',
		'transform': 'translateX(-50%)',
		'background': 'rgba(30,30,30,0.95)', 'padding': '8px',
		'border-radius': '6px', 'z-index': '2147483647',
		'display': 'flex', 'align-items': 'center'
	}));
	var prompt = o.own(o.make('span', {
		'margin-right': '8px', 'color': '#eee', 'font': '13px sans-serif'
	}));
	prompt.textContent = 'Click the username field';
	toolbar.appendChild(prompt);
	toolbar.appendChild(button('Skip This Field', function() { return { type: 'skip' }; }));
	toolbar.appendChild(button('Done', function() { return { type: 'done' }; }));
	toolbar.appendChild(button('Cancel', function() { return { type: 'cancel' }; }));
	o.nodes.toolbar = toolbar;
	o.nodes.prompt = prompt;
	document.body.appendChild(toolbar);

	o.setMode = function() {};

	o.listen(document, 'pointermove', function(ev) {
		if (o.isOwn(ev.target)) return;
		o.send({ type: 'hover', element: o.describe(ev.target) });
	}, true);

	o.listen(document, 'click', function(ev) {
		if (o.isOwn(ev.target)) return;
		ev.preventDefault();
		ev.stopPropagation();
		o.send({ type: 'click', element: o.describe(ev.target) });
	}, true);

	o.send({ type: 'ready' });
})();
`

// deferredInject wraps an overlay script in the deferred-init loop: the
// first attempt runs after 1s, then every 0.5s until a body exists.
// SPAs frequently have no body content (or no body at all) at
// DOMContentLoaded time.
func deferredInject(script string) string {
	return `
(function() {
	var attempt = function() {
		if (!document.body) {
			setTimeout(attempt, ` + strconv.Itoa(overlayPollMS) + `);
			return;
		}
		` + script + `
	};
	setTimeout(attempt, ` + strconv.Itoa(overlayInitDelayMS) + `);
})();
`
}

// RegionOverlayScript is the full injectable region picker.
func RegionOverlayScript() string { return deferredInject(regionOverlayJS) }

// CredentialOverlayScript is the full injectable credential picker.
func CredentialOverlayScript() string { return deferredInject(credentialOverlayJS) }
